// Package codec maps outline trees to and from the Strata text format:
// a YAML frontmatter block carrying the doc-type marker, title, and an
// optional status schema, followed by an indented bullet list.
//
// Serialization is canonical: serializing, parsing, and serializing
// again yields byte-identical text (node ids are not part of that
// contract; tree shape, text, status, tags, due dates, and collapsed
// flags are).
package codec

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/starford/strata/internal/apperr"
	"github.com/starford/strata/internal/models"
	"github.com/starford/strata/internal/rank"
)

// DocTypeMarker identifies a file as a Strata document.
const DocTypeMarker = "strata"

const fmDelim = "---"

var (
	bulletRe    = regexp.MustCompile(`^( *)- (.*)$`)
	dueRe       = regexp.MustCompile(`\s*@due\((\d{4}-\d{2}-\d{2})\)`)
	collapsedRe = regexp.MustCompile(`\s*\^collapsed\b`)
	tagRe       = regexp.MustCompile(`(?:^|\s)#([A-Za-z0-9][A-Za-z0-9_/-]*)`)
	statusRe    = regexp.MustCompile(`\s+::(\S.*?)\s*$`)
)

// Document is the parsed form of a Strata file.
type Document struct {
	Nodes    models.NodeMap
	RootID   string
	Statuses []models.StatusDef
}

// frontmatter is the YAML block at the top of every document. Field
// order here fixes the serialized key order.
type frontmatter struct {
	DocType  string             `yaml:"doc-type"`
	Title    string             `yaml:"title,omitempty"`
	Statuses []models.StatusDef `yaml:"statuses,omitempty"`
}

// IsDocument reports whether data begins with a frontmatter block
// containing the Strata doc-type marker. It never reads past the
// frontmatter.
func IsDocument(data []byte) bool {
	content := string(bytes.TrimLeft(data, "\n\r"))
	if !strings.HasPrefix(content, fmDelim+"\n") && !strings.HasPrefix(content, fmDelim+"\r\n") {
		return false
	}
	rest := content[len(fmDelim):]
	end := strings.Index(rest, "\n"+fmDelim)
	if end < 0 {
		return false
	}
	for _, line := range strings.Split(rest[:end], "\n") {
		t := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if t == "doc-type: "+DocTypeMarker || t == `doc-type: "`+DocTypeMarker+`"` {
			return true
		}
	}
	return false
}

// Title returns the title recorded in the frontmatter, or "" when the
// data is not a Strata document or carries none.
func Title(data []byte) string {
	fm, _, err := splitFrontmatter(data)
	if err != nil || fm.DocType != DocTypeMarker {
		return ""
	}
	return fm.Title
}

// Serialize renders the document as canonical Strata text: frontmatter,
// then a depth-first pos-ordered bullet list. Tombstoned nodes are
// excluded. Per bullet the metadata tokens follow the title in fixed
// order: status marker, tags, due date, collapsed marker.
func Serialize(doc *Document) string {
	schema := doc.Statuses
	if len(schema) == 0 {
		schema = models.DefaultStatuses()
	}

	var sb strings.Builder
	sb.WriteString(fmDelim + "\n")

	fm := frontmatter{DocType: DocTypeMarker}
	if root, ok := doc.Nodes[doc.RootID]; ok {
		fm.Title = root.Title()
	}
	if !models.SameSchema(schema, models.DefaultStatuses()) {
		fm.Statuses = schema
	}
	out, err := yaml.Marshal(&fm)
	if err == nil {
		sb.Write(out)
	}
	sb.WriteString(fmDelim + "\n")

	for _, child := range orderedChildren(doc.Nodes, doc.RootID) {
		writeNode(&sb, doc.Nodes, child, 0, schema)
	}
	return sb.String()
}

func writeNode(sb *strings.Builder, nodes models.NodeMap, n *models.Node, depth int, schema []models.StatusDef) {
	indent := strings.Repeat("  ", depth)
	lines := strings.Split(n.Text, "\n")
	// Trailing empty lines have no representation: Parse drops trailing
	// blank padding, so emitting them would break the serialize fixed
	// point.
	for len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	sb.WriteString(indent)
	sb.WriteString("- ")

	def, known := models.StatusByID(schema, n.Status)
	if known && def.Final {
		sb.WriteString("[x] ")
	} else {
		sb.WriteString("[ ] ")
	}
	sb.WriteString(lines[0])

	// Status marker is omitted when it is the schema default or when the
	// checkbox already conveys it (first final status).
	if n.Status != models.DefaultStatusID(schema) && n.Status != models.FirstFinalStatusID(schema) {
		label := n.Status
		if known {
			label = def.Label
		}
		sb.WriteString(" ::" + label)
	}
	for _, tag := range n.Tags {
		sb.WriteString(" #" + tag)
	}
	if n.DueDate != 0 {
		sb.WriteString(" @due(" + time.UnixMilli(n.DueDate).UTC().Format("2006-01-02") + ")")
	}
	if n.Collapsed {
		sb.WriteString(" ^collapsed")
	}
	sb.WriteString("\n")

	// Continuation lines sit one level deeper with no bullet. Lines that
	// would re-parse as a bullet (at any indentation), read back as blank
	// padding, or start with a backslash are escaped.
	contIndent := strings.Repeat("  ", depth+1)
	for _, line := range lines[1:] {
		if line == "" {
			sb.WriteString("\n")
			continue
		}
		sb.WriteString(contIndent)
		sb.WriteString(escapeContinuation(line))
		sb.WriteString("\n")
	}

	for _, child := range orderedChildren(nodes, n.ID) {
		writeNode(sb, nodes, child, depth+1, schema)
	}
}

// escapeContinuation protects continuation lines the reader would
// otherwise misread. The check runs on the space-trimmed form because
// bullets match at any indentation, and a line's own leading spaces
// stack on top of the continuation indent when emitted.
func escapeContinuation(line string) string {
	if strings.HasPrefix(line, `\`) {
		return `\` + line
	}
	trimmed := strings.TrimLeft(line, " ")
	if strings.HasPrefix(trimmed, "- ") || trimmed == "-" || trimmed == "" {
		return `\` + line
	}
	return line
}

func unescapeContinuation(line string) string {
	if strings.HasPrefix(line, `\`) {
		return line[1:]
	}
	return line
}

func orderedChildren(nodes models.NodeMap, parentID string) []*models.Node {
	return models.OrderedChildren(nodes, parentID)
}

// Parse builds a document tree from Strata text. Freshly parsed trees
// always carry new node ids; callers merging into an existing document
// run the result through the reconciler.
//
// Both marker conventions are accepted: bullets with a checkbox use
// checkbox-plus-final-flag semantics, bullets without one take their
// status purely from the ::label marker.
func Parse(data []byte) (*Document, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	schema := fm.Statuses
	if len(schema) == 0 {
		schema = models.DefaultStatuses()
	}
	labelToID := make(map[string]string, len(schema)*2)
	for _, s := range schema {
		labelToID[s.Label] = s.ID
		labelToID[s.ID] = s.ID
	}
	defaultStatus := models.DefaultStatusID(schema)
	finalStatus := models.FirstFinalStatusID(schema)

	root := &models.Node{
		ID:     uuid.NewString(),
		Pos:    rank.Initial(),
		Text:   fm.Title,
		Status: defaultStatus,
	}
	doc := &Document{
		Nodes:    models.NodeMap{root.ID: root},
		RootID:   root.ID,
		Statuses: schema,
	}

	type frame struct {
		depth int
		id    string
	}
	stack := []frame{{depth: -1, id: root.ID}}
	lastPos := make(map[string]string) // parent id -> last sibling pos
	var cur *models.Node
	curDepth := 0
	pendingBlanks := 0

	for _, rawLine := range strings.Split(body, "\n") {
		line := strings.TrimSuffix(rawLine, "\r")

		if m := bulletRe.FindStringSubmatch(line); m != nil {
			depth := len(m[1]) / 2

			// Pop to the first entry shallower than this bullet.
			for len(stack) > 1 && stack[len(stack)-1].depth >= depth {
				stack = stack[:len(stack)-1]
			}
			parent := stack[len(stack)-1].id

			pos := rank.Initial()
			if last, ok := lastPos[parent]; ok {
				pos = rank.After(last)
			}
			lastPos[parent] = pos

			n := parseBullet(m[2], labelToID, defaultStatus, finalStatus)
			n.ID = uuid.NewString()
			n.ParentID = parent
			n.Pos = pos

			doc.Nodes[n.ID] = n
			stack = append(stack, frame{depth: depth, id: n.ID})
			cur = n
			curDepth = depth
			pendingBlanks = 0
			continue
		}

		if strings.TrimSpace(line) == "" {
			// Blank padding: flushed only if more body content follows,
			// so trailing blanks never become text.
			if cur != nil {
				pendingBlanks++
			}
			continue
		}

		if cur == nil {
			continue
		}
		content := stripIndent(line, 2*(curDepth+1))
		cur.Text += strings.Repeat("\n", pendingBlanks) + "\n" + unescapeContinuation(content)
		pendingBlanks = 0
	}

	return doc, nil
}

// parseBullet extracts checkbox, metadata tokens, and title from a
// bullet body. Tokens are stripped in a fixed order; each pattern
// removes its match so it cannot leak into a later one.
func parseBullet(content string, labelToID map[string]string, defaultStatus, finalStatus string) *models.Node {
	n := &models.Node{Status: defaultStatus}

	hasCheckbox := false
	checked := false
	switch {
	case strings.HasPrefix(content, "[ ] "):
		hasCheckbox = true
		content = content[4:]
	case strings.HasPrefix(content, "[x] "), strings.HasPrefix(content, "[X] "):
		hasCheckbox, checked = true, true
		content = content[4:]
	}

	if m := dueRe.FindStringSubmatch(content); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]); err == nil {
			n.DueDate = t.UnixMilli()
		}
		content = dueRe.ReplaceAllString(content, "")
	}

	if collapsedRe.MatchString(content) {
		n.Collapsed = true
		content = collapsedRe.ReplaceAllString(content, "")
	}

	for _, m := range tagRe.FindAllStringSubmatch(content, -1) {
		if !n.HasTag(m[1]) {
			n.Tags = append(n.Tags, m[1])
		}
	}
	content = tagRe.ReplaceAllString(content, "")

	statusLabel := ""
	if m := statusRe.FindStringSubmatch(content); m != nil {
		statusLabel = m[1]
		content = statusRe.ReplaceAllString(content, "")
	}

	switch {
	case statusLabel != "":
		if id, ok := labelToID[statusLabel]; ok {
			n.Status = id
		} else {
			n.Status = statusLabel
		}
	case hasCheckbox && checked && finalStatus != "":
		n.Status = finalStatus
	}

	n.Text = strings.TrimRight(content, " ")
	return n
}

// stripIndent removes up to max leading spaces, keeping any deeper
// indentation as part of the text.
func stripIndent(line string, max int) string {
	i := 0
	for i < len(line) && i < max && line[i] == ' ' {
		i++
	}
	return line[i:]
}

// splitFrontmatter separates and decodes the YAML frontmatter. A
// document without the doc-type marker is rejected; nothing of it is
// ever partially applied.
func splitFrontmatter(data []byte) (frontmatter, string, error) {
	var fm frontmatter

	content := string(bytes.TrimLeft(data, "\n\r"))
	if !strings.HasPrefix(content, fmDelim+"\n") && !strings.HasPrefix(content, fmDelim+"\r\n") {
		return fm, "", fmt.Errorf("codec: missing frontmatter: %w", apperr.ErrInvalidDocument)
	}
	rest := content[len(fmDelim):]
	end := strings.Index(rest, "\n"+fmDelim)
	if end < 0 {
		return fm, "", fmt.Errorf("codec: unterminated frontmatter: %w", apperr.ErrInvalidDocument)
	}

	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return fm, "", fmt.Errorf("codec: frontmatter: %v: %w", err, apperr.ErrInvalidDocument)
	}
	if fm.DocType != DocTypeMarker {
		return fm, "", fmt.Errorf("codec: doc-type %q is not %q: %w", fm.DocType, DocTypeMarker, apperr.ErrInvalidDocument)
	}

	body := rest[end+1+len(fmDelim):]
	body = strings.TrimLeft(body, "\r\n")
	return fm, body, nil
}
