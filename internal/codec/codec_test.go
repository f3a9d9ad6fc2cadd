package codec

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/strata/internal/apperr"
	"github.com/starford/strata/internal/models"
	"github.com/starford/strata/internal/rank"
)

// buildDoc assembles a document from (depth, text, status) rows plus a
// mutator for extra fields.
func buildDoc(t *testing.T, rows []testRow) *Document {
	t.Helper()
	root := &models.Node{ID: "root", Pos: rank.Initial(), Text: "Test Doc", Status: "todo"}
	doc := &Document{
		Nodes:    models.NodeMap{"root": root},
		RootID:   "root",
		Statuses: models.DefaultStatuses(),
	}
	parents := map[int]string{-1: "root"}
	lastPos := map[string]string{}
	for i, row := range rows {
		parent := parents[row.depth-1]
		if parent == "" {
			t.Fatalf("row %d: no parent at depth %d", i, row.depth-1)
		}
		pos := rank.Initial()
		if last, ok := lastPos[parent]; ok {
			pos = rank.After(last)
		}
		lastPos[parent] = pos
		n := &models.Node{
			ID:       row.id,
			ParentID: parent,
			Pos:      pos,
			Text:     row.text,
			Status:   row.status,
		}
		if row.mutate != nil {
			row.mutate(n)
		}
		doc.Nodes[n.ID] = n
		parents[row.depth] = n.ID
	}
	return doc
}

type testRow struct {
	id     string
	depth  int
	text   string
	status string
	mutate func(*models.Node)
}

func TestSerialize_DefaultStatusOmitted(t *testing.T) {
	doc := buildDoc(t, []testRow{
		{id: "a", depth: 0, text: "First item", status: "todo"},
		{id: "b", depth: 0, text: "Second item", status: "done"},
	})
	out := Serialize(doc)

	if !strings.Contains(out, "- [ ] First item\n") {
		t.Errorf("first item line wrong:\n%s", out)
	}
	if !strings.Contains(out, "- [x] Second item\n") {
		t.Errorf("second item should carry its completion checkbox:\n%s", out)
	}
	if strings.Contains(out, "::Todo") {
		t.Errorf("default status must never be serialized:\n%s", out)
	}
	if strings.Contains(out, "::Done") {
		t.Errorf("done is redundant with the checkbox:\n%s", out)
	}
}

func TestSerialize_IntermediateStatusMarker(t *testing.T) {
	doc := buildDoc(t, []testRow{
		{id: "a", depth: 0, text: "Working on it", status: "in-progress"},
	})
	out := Serialize(doc)
	if !strings.Contains(out, "- [ ] Working on it ::In Progress\n") {
		t.Errorf("intermediate status needs a marker:\n%s", out)
	}
}

func TestSerialize_TokenOrder(t *testing.T) {
	doc := buildDoc(t, []testRow{
		{id: "a", depth: 0, text: "Task", status: "in-progress", mutate: func(n *models.Node) {
			n.Tags = []string{"home", "urgent"}
			n.DueDate = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
			n.Collapsed = true
		}},
	})
	out := Serialize(doc)
	want := "- [ ] Task ::In Progress #home #urgent @due(2026-09-01) ^collapsed\n"
	if !strings.Contains(out, want) {
		t.Errorf("token order mismatch:\ngot:\n%s\nwant line: %s", out, want)
	}
}

func TestParse_RejectsNonStrataFile(t *testing.T) {
	for _, input := range []string{
		"# Just markdown\n- a bullet\n",
		"---\ntitle: No marker\n---\n- item\n",
		"---\ndoc-type: strata\nno closing delimiter",
	} {
		if _, err := Parse([]byte(input)); !errors.Is(err, apperr.ErrInvalidDocument) {
			t.Errorf("input %q: err = %v, want ErrInvalidDocument", input, err)
		}
	}
}

func TestParse_CheckboxHierarchy(t *testing.T) {
	input := "---\ndoc-type: strata\n---\n- [ ] Parent\n  - [ ] Child\n    - [x] Grandchild\n"
	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	byTitle := map[string]*models.Node{}
	for _, n := range doc.Nodes {
		byTitle[n.Title()] = n
	}
	parent, child, grand := byTitle["Parent"], byTitle["Child"], byTitle["Grandchild"]
	if parent == nil || child == nil || grand == nil {
		t.Fatalf("missing nodes, got %v", byTitle)
	}
	if parent.ParentID != doc.RootID {
		t.Error("Parent should hang off the root")
	}
	if child.ParentID != parent.ID {
		t.Error("Child should hang off Parent")
	}
	if grand.ParentID != child.ID {
		t.Error("Grandchild should hang off Child")
	}
	if parent.Status != "todo" || child.Status != "todo" {
		t.Errorf("unchecked items should be todo, got %q / %q", parent.Status, child.Status)
	}
	if grand.Status != "done" {
		t.Errorf("checked item should take the first final status, got %q", grand.Status)
	}
}

func TestParse_LegacyLabelMarkers(t *testing.T) {
	// Bullets without a checkbox take their status purely from the
	// ::label marker.
	input := "---\ndoc-type: strata\n---\n- Plain item\n- Finished item ::Done\n- Busy item ::In Progress\n"
	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	byTitle := map[string]string{}
	for _, n := range doc.Nodes {
		byTitle[n.Title()] = n.Status
	}
	if byTitle["Plain item"] != "todo" {
		t.Errorf("plain = %q", byTitle["Plain item"])
	}
	if byTitle["Finished item"] != "done" {
		t.Errorf("finished = %q", byTitle["Finished item"])
	}
	if byTitle["Busy item"] != "in-progress" {
		t.Errorf("busy = %q", byTitle["Busy item"])
	}
}

func TestParse_InlineMetadata(t *testing.T) {
	input := "---\ndoc-type: strata\n---\n- [ ] Call plumber #home #follow-up @due(2026-03-15) ^collapsed\n"
	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var n *models.Node
	for _, c := range doc.Nodes {
		if c.ID != doc.RootID {
			n = c
		}
	}
	if n.Title() != "Call plumber" {
		t.Errorf("title = %q", n.Title())
	}
	if len(n.Tags) != 2 || n.Tags[0] != "home" || n.Tags[1] != "follow-up" {
		t.Errorf("tags = %v", n.Tags)
	}
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC).UnixMilli()
	if n.DueDate != want {
		t.Errorf("due = %d, want %d", n.DueDate, want)
	}
	if !n.Collapsed {
		t.Error("collapsed marker lost")
	}
}

func TestParse_MultilineAndBlankPadding(t *testing.T) {
	input := "---\ndoc-type: strata\n---\n" +
		"- [ ] Item with body\n" +
		"  first continuation\n" +
		"\n" +
		"  after a blank\n" +
		"\n" +
		"- [ ] Next item\n"
	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var withBody *models.Node
	for _, n := range doc.Nodes {
		if strings.HasPrefix(n.Text, "Item with body") {
			withBody = n
		}
	}
	want := "Item with body\nfirst continuation\n\nafter a blank"
	if withBody == nil || withBody.Text != want {
		t.Errorf("text = %q, want %q", withBody.Text, want)
	}
}

func TestRoundTrip_FixedPoint(t *testing.T) {
	doc := buildDoc(t, []testRow{
		{id: "a", depth: 0, text: "Groceries", status: "todo", mutate: func(n *models.Node) {
			n.Collapsed = true
		}},
		{id: "a1", depth: 1, text: "Milk", status: "done"},
		{id: "a2", depth: 1, text: "Bread\nwhole grain\n\nor rye", status: "todo", mutate: func(n *models.Node) {
			n.Tags = []string{"bakery"}
		}},
		{id: "b", depth: 0, text: "Taxes", status: "in-progress", mutate: func(n *models.Node) {
			n.DueDate = time.Date(2027, 4, 15, 0, 0, 0, 0, time.UTC).UnixMilli()
		}},
		{id: "b1", depth: 1, text: "Collect receipts", status: "done"},
	})

	first := Serialize(doc)
	reparsed, err := Parse([]byte(first))
	if err != nil {
		t.Fatalf("Parse(serialize): %v", err)
	}
	second := Serialize(reparsed)
	if first != second {
		t.Errorf("serialization is not a fixed point:\n--- first ---\n%s\n--- second ---\n%s", first, second)
	}
}

func TestRoundTrip_CustomSchema(t *testing.T) {
	doc := buildDoc(t, []testRow{
		{id: "a", depth: 0, text: "Ticket", status: "review"},
	})
	doc.Statuses = []models.StatusDef{
		{ID: "open", Label: "Open", Color: "#999999", Icon: "circle"},
		{ID: "review", Label: "In Review", Color: "#cc8800", Icon: "eye"},
		{ID: "shipped", Label: "Shipped", Color: "#00aa00", Icon: "check", Final: true},
	}
	doc.Nodes["a"].Status = "review"

	first := Serialize(doc)
	if !strings.Contains(first, "statuses:") {
		t.Fatalf("custom schema must be serialized in frontmatter:\n%s", first)
	}
	reparsed, err := Parse([]byte(first))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(reparsed.Statuses) != 3 || reparsed.Statuses[1].ID != "review" {
		t.Errorf("schema lost in round trip: %+v", reparsed.Statuses)
	}
	second := Serialize(reparsed)
	if first != second {
		t.Errorf("custom-schema serialization is not a fixed point:\n%s\nvs\n%s", first, second)
	}
}

func TestRoundTrip_EscapedContinuation(t *testing.T) {
	doc := buildDoc(t, []testRow{
		{id: "a", depth: 0, text: "Item\n- looks like a bullet\nnormal line", status: "todo"},
	})
	first := Serialize(doc)
	reparsed, err := Parse([]byte(first))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// The dash line must stay body text, not become a child node.
	if len(reparsed.Nodes) != 2 {
		t.Fatalf("node count = %d, want 2 (root + item)", len(reparsed.Nodes))
	}
	second := Serialize(reparsed)
	if first != second {
		t.Errorf("escaped continuation not a fixed point:\n%s\nvs\n%s", first, second)
	}
}

func TestRoundTrip_IndentedBulletContinuation(t *testing.T) {
	doc := buildDoc(t, []testRow{
		{id: "a", depth: 0, text: "Item\n  - sub", status: "todo"},
	})
	first := Serialize(doc)
	reparsed, err := Parse([]byte(first))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// The indented dash line must stay body text, not become a deeper
	// child node.
	if len(reparsed.Nodes) != 2 {
		t.Fatalf("node count = %d, want 2 (root + item)", len(reparsed.Nodes))
	}
	for _, n := range reparsed.Nodes {
		if n.ID != reparsed.RootID && n.Text != "Item\n  - sub" {
			t.Errorf("item text = %q, want the indented dash preserved", n.Text)
		}
	}
	second := Serialize(reparsed)
	if first != second {
		t.Errorf("indented bullet continuation not a fixed point:\n%s\nvs\n%s", first, second)
	}
}

func TestRoundTrip_TrailingNewlineText(t *testing.T) {
	doc := buildDoc(t, []testRow{
		{id: "a", depth: 0, text: "a\n", status: "todo"},
		{id: "b", depth: 0, text: "keep\n   ", status: "todo"},
	})
	first := Serialize(doc)
	if strings.Contains(first, "- [ ] a\n\n") {
		t.Errorf("trailing blank line must not be emitted:\n%s", first)
	}
	reparsed, err := Parse([]byte(first))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	second := Serialize(reparsed)
	if first != second {
		t.Errorf("trailing-newline text not a fixed point:\n--- first ---\n%s\n--- second ---\n%s", first, second)
	}
	for _, n := range reparsed.Nodes {
		if strings.HasPrefix(n.Text, "keep") && n.Text != "keep\n   " {
			t.Errorf("whitespace-only line lost: %q", n.Text)
		}
	}
}

func TestIsDocument(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"---\ndoc-type: strata\n---\n", true},
		{"---\ntitle: x\ndoc-type: \"strata\"\n---\nbody", true},
		{"---\ntitle: x\n---\nbody", false},
		{"# heading\n", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsDocument([]byte(c.input)); got != c.want {
			t.Errorf("IsDocument(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

func TestSerialize_TitleInFrontmatter(t *testing.T) {
	doc := buildDoc(t, nil)
	out := Serialize(doc)
	if !strings.Contains(out, "title: Test Doc\n") {
		t.Errorf("root title missing from frontmatter:\n%s", out)
	}
	reparsed, err := Parse([]byte(out))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if reparsed.Nodes[reparsed.RootID].Text != "Test Doc" {
		t.Errorf("root text = %q", reparsed.Nodes[reparsed.RootID].Text)
	}
}
