// Package models defines the domain types for Strata.
package models

import "sort"

// Node is one item in the outline tree. The first line of Text is the
// item title; any remaining lines are its body. ParentID is empty only
// for the single root node.
type Node struct {
	ID        string   `json:"id"`
	ParentID  string   `json:"parentId,omitempty"`
	Pos       string   `json:"pos"`
	Text      string   `json:"text"`
	Status    string   `json:"status"`
	Collapsed bool     `json:"collapsed,omitempty"`
	Deleted   bool     `json:"deleted,omitempty"`
	DeletedAt int64    `json:"deletedAt,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	DueDate   int64    `json:"dueDate,omitempty"` // UTC midnight, epoch millis; 0 = unset
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	if n.Tags != nil {
		c.Tags = make([]string, len(n.Tags))
		copy(c.Tags, n.Tags)
	}
	return &c
}

// Title returns the first line of the node text.
func (n *Node) Title() string {
	for i := 0; i < len(n.Text); i++ {
		if n.Text[i] == '\n' {
			return n.Text[:i]
		}
	}
	return n.Text
}

// HasTag reports whether tag is present on the node.
func (n *Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NodeMap is the projected node state keyed by node id.
type NodeMap map[string]*Node

// OrderedChildren returns the non-deleted children of parentID sorted
// by pos, with id as a deterministic tiebreak. Tombstoned nodes are
// excluded from traversal and ordering.
func OrderedChildren(m NodeMap, parentID string) []*Node {
	var out []*Node
	for _, n := range m {
		if n.ParentID == parentID && n.ID != parentID && !n.Deleted {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pos != out[j].Pos {
			return out[i].Pos < out[j].Pos
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Clone returns a deep copy of the map.
func (m NodeMap) Clone() NodeMap {
	out := make(NodeMap, len(m))
	for id, n := range m {
		out[id] = n.Clone()
	}
	return out
}
