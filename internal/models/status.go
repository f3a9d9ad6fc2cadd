package models

// StatusDef describes one entry in a document's status schema.
// Final marks a completion state; the codec renders final statuses as a
// checked checkbox.
type StatusDef struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
	Color string `json:"color" yaml:"color"`
	Icon  string `json:"icon" yaml:"icon"`
	Final bool   `json:"final,omitempty" yaml:"final,omitempty"`
}

// DefaultStatuses returns the implicit status schema. The first entry is
// the default status for new nodes and is omitted when serializing.
func DefaultStatuses() []StatusDef {
	return []StatusDef{
		{ID: "todo", Label: "Todo", Color: "#8b949e", Icon: "circle"},
		{ID: "in-progress", Label: "In Progress", Color: "#d29922", Icon: "half-circle"},
		{ID: "done", Label: "Done", Color: "#3fb950", Icon: "check", Final: true},
	}
}

// DefaultStatusID returns the schema's default status id.
func DefaultStatusID(schema []StatusDef) string {
	if len(schema) == 0 {
		return ""
	}
	return schema[0].ID
}

// FirstFinalStatusID returns the id of the first final status in the
// schema, or empty string if the schema has none.
func FirstFinalStatusID(schema []StatusDef) string {
	for _, s := range schema {
		if s.Final {
			return s.ID
		}
	}
	return ""
}

// StatusByID looks up a status definition by id.
func StatusByID(schema []StatusDef, id string) (StatusDef, bool) {
	for _, s := range schema {
		if s.ID == id {
			return s, true
		}
	}
	return StatusDef{}, false
}

// SameSchema reports whether two schemas are identical entry for entry.
func SameSchema(a, b []StatusDef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
