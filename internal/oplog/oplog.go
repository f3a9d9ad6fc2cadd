// Package oplog defines the operation projection: the pure fold that
// turns a sequence of operations into a node map.
package oplog

import (
	"sort"
	"sync"

	"github.com/starford/strata/internal/models"
)

// Apply folds one operation into the node map in place and returns the
// affected node id. Operations whose target node is absent are silent
// no-ops (replay must tolerate partial logs); ok is false and the map is
// left untouched.
func Apply(nodes models.NodeMap, op models.Operation) (string, bool) {
	p := op.Payload

	if op.Type == models.OpCreate {
		tags := make([]string, len(p.Tags))
		copy(tags, p.Tags)
		nodes[p.NodeID] = &models.Node{
			ID:        p.NodeID,
			ParentID:  p.ParentID,
			Pos:       p.Pos,
			Text:      p.Text,
			Status:    p.Status,
			Collapsed: p.Collapsed,
			Tags:      tags,
			DueDate:   p.DueDate,
		}
		return p.NodeID, true
	}

	n, ok := nodes[p.NodeID]
	if !ok {
		return "", false
	}

	switch op.Type {
	case models.OpUpdateText:
		n.Text = p.Text
	case models.OpMove:
		n.ParentID = p.ParentID
		n.Pos = p.Pos
	case models.OpSetStatus:
		n.Status = p.Status
	case models.OpToggleCollapsed:
		n.Collapsed = !n.Collapsed
	case models.OpTombstone:
		n.Deleted = true
		n.DeletedAt = op.TS
	case models.OpRestore:
		n.Deleted = false
		n.DeletedAt = 0
	case models.OpAddTag:
		if !n.HasTag(p.Tag) {
			n.Tags = append(n.Tags, p.Tag)
		}
	case models.OpRemoveTag:
		for i, t := range n.Tags {
			if t == p.Tag {
				n.Tags = append(n.Tags[:i], n.Tags[i+1:]...)
				break
			}
		}
	case models.OpSetDueDate:
		n.DueDate = p.DueDate
	default:
		return "", false
	}
	return p.NodeID, true
}

// Rebuild starts from a (possibly empty) base node list, sorts ops by
// sequence number ascending, and folds them with Apply. Sorting makes
// replay idempotent regardless of retrieval order: any permutation of
// the same ops yields the same projection.
func Rebuild(base []models.Node, ops []models.Operation) models.NodeMap {
	nodes := make(models.NodeMap, len(base))
	for i := range base {
		n := base[i]
		nodes[n.ID] = n.Clone()
	}

	sorted := make([]models.Operation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Seq < sorted[j].Seq
	})

	for _, op := range sorted {
		Apply(nodes, op)
	}
	return nodes
}

// Counter issues monotonically increasing sequence numbers for one
// engine instance. Set is only for re-deriving state from a loaded log,
// never during normal operation.
type Counter struct {
	mu   sync.Mutex
	next int64
}

// Next returns the current sequence number and advances the counter.
func (c *Counter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.next
	c.next++
	return n
}

// Peek returns the next sequence number without advancing.
func (c *Counter) Peek() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Set resets the counter so the next issued number is v.
func (c *Counter) Set(v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = v
}
