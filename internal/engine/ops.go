package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/strata/internal/apperr"
	"github.com/starford/strata/internal/models"
	"github.com/starford/strata/internal/rank"
)

// CreateNode inserts a new node under parentID. When afterID names an
// existing sibling the node lands immediately after it; otherwise it is
// appended at the end of the parent's children. Returns a copy of the
// created node.
func (e *Engine) CreateNode(parentID, afterID, text string) (*models.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if parentID == "" {
		parentID = e.rootID
	}
	if _, ok := e.nodes[parentID]; !ok {
		return nil, fmt.Errorf("engine: parent %s: %w", parentID, apperr.ErrNotFound)
	}

	pos, err := e.posAmongLocked(parentID, afterID, "")
	if err != nil {
		return nil, err
	}

	op := e.newOp(models.OpCreate, models.OpPayload{
		NodeID:   uuid.NewString(),
		ParentID: parentID,
		Pos:      pos,
		Text:     text,
		Status:   models.DefaultStatusID(e.statuses),
	})
	e.dispatchLocked(op, true)
	e.selection = op.Payload.NodeID
	return e.nodes[op.Payload.NodeID].Clone(), nil
}

// UpdateText applies a text change to the in-memory tree immediately
// and debounces the durable updateText op: per-node timers emit one op
// per quiet period, with the undo frame capturing the text before the
// first keystroke of the burst.
func (e *Engine) UpdateText(id, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.nodes[id]
	if !ok {
		return fmt.Errorf("engine: node %s: %w", id, apperr.ErrNotFound)
	}

	deb, ok := e.debounced[id]
	if !ok {
		deb = &pendingText{before: *n.Clone(), selection: e.selection}
		e.debounced[id] = deb
		if !e.closed {
			nodeID := id
			deb.timer = time.AfterFunc(e.opts.Debounce, func() { e.FlushText(nodeID) })
		}
	} else if deb.timer != nil {
		deb.timer.Reset(e.opts.Debounce)
	}

	n.Text = text
	if e.opts.OnChange != nil {
		e.opts.OnChange([]string{id})
	}
	return nil
}

// FlushText synchronously emits the pending updateText op for one node.
func (e *Engine) FlushText(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushTextLocked(id)
}

// FlushAllText synchronously emits pending updateText ops for every
// debounced node. Callers needing a consistent durable state (undo,
// document switch, export) run this first.
func (e *Engine) FlushAllText() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushAllTextLocked()
}

func (e *Engine) flushAllTextLocked() {
	for id := range e.debounced {
		e.flushTextLocked(id)
	}
}

func (e *Engine) flushTextLocked(id string) {
	deb, ok := e.debounced[id]
	if !ok {
		return
	}
	delete(e.debounced, id)
	if deb.timer != nil {
		deb.timer.Stop()
	}

	n, ok := e.nodes[id]
	if !ok || n.Text == deb.before.Text {
		return
	}

	op := e.newOp(models.OpUpdateText, models.OpPayload{NodeID: id, Text: n.Text})
	e.pushUndoLocked(historyEntry{op: op, before: []models.Node{deb.before}, selection: deb.selection})
	e.redoStack = nil
	e.dispatchLocked(op, false)
}

// MoveNode reparents a node, placing it after afterID among the new
// parent's children (or at the end when afterID is empty). A move whose
// new parent chain contains the node itself is rejected.
func (e *Engine) MoveNode(id, newParentID, afterID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.nodes[id]; !ok {
		return fmt.Errorf("engine: node %s: %w", id, apperr.ErrNotFound)
	}
	if newParentID == "" {
		newParentID = e.rootID
	}
	if _, ok := e.nodes[newParentID]; !ok {
		return fmt.Errorf("engine: parent %s: %w", newParentID, apperr.ErrNotFound)
	}

	// Ancestry check: walking up from the proposed parent must not pass
	// through the moving node.
	for cur := newParentID; cur != ""; {
		if cur == id {
			return fmt.Errorf("engine: move %s under %s: %w", id, newParentID, apperr.ErrCyclicMove)
		}
		parent, ok := e.nodes[cur]
		if !ok {
			break
		}
		cur = parent.ParentID
	}

	pos, err := e.posAmongLocked(newParentID, afterID, id)
	if err != nil {
		return err
	}
	op := e.newOp(models.OpMove, models.OpPayload{NodeID: id, ParentID: newParentID, Pos: pos})
	e.dispatchLocked(op, true)
	return nil
}

// SetStatus assigns a status id to a node.
func (e *Engine) SetStatus(id, status string) error {
	return e.simpleOp(id, models.OpSetStatus, models.OpPayload{NodeID: id, Status: status})
}

// ToggleCollapsed flips a node's collapsed hint.
func (e *Engine) ToggleCollapsed(id string) error {
	return e.simpleOp(id, models.OpToggleCollapsed, models.OpPayload{NodeID: id})
}

// SetDueDate assigns a due date (UTC-midnight epoch millis; 0 clears).
func (e *Engine) SetDueDate(id string, due int64) error {
	return e.simpleOp(id, models.OpSetDueDate, models.OpPayload{NodeID: id, DueDate: due})
}

// AddTag adds a tag to a node. Adding a tag that is already present is
// a silent no-op and records no undo frame.
func (e *Engine) AddTag(id, tag string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes[id]
	if !ok {
		return fmt.Errorf("engine: node %s: %w", id, apperr.ErrNotFound)
	}
	if n.HasTag(tag) {
		return nil
	}
	e.dispatchLocked(e.newOp(models.OpAddTag, models.OpPayload{NodeID: id, Tag: tag}), true)
	return nil
}

// RemoveTag removes a tag from a node; absent tags are a silent no-op.
func (e *Engine) RemoveTag(id, tag string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes[id]
	if !ok {
		return fmt.Errorf("engine: node %s: %w", id, apperr.ErrNotFound)
	}
	if !n.HasTag(tag) {
		return nil
	}
	e.dispatchLocked(e.newOp(models.OpRemoveTag, models.OpPayload{NodeID: id, Tag: tag}), true)
	return nil
}

// Tombstone soft-deletes a node and its entire subtree. Every
// descendant gets its own op so undo can restore them individually.
func (e *Engine) Tombstone(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.nodes[id]
	if !ok {
		return fmt.Errorf("engine: node %s: %w", id, apperr.ErrNotFound)
	}

	var ids []string
	var walk func(string)
	walk = func(cur string) {
		ids = append(ids, cur)
		for _, c := range models.OrderedChildren(e.nodes, cur) {
			walk(c.ID)
		}
	}
	walk(id)

	for _, target := range ids {
		e.dispatchLocked(e.newOp(models.OpTombstone, models.OpPayload{NodeID: target}), true)
	}
	if e.selection == id {
		e.selection = n.ParentID
	}
	return nil
}

// Restore clears a node's tombstone.
func (e *Engine) Restore(id string) error {
	return e.simpleOp(id, models.OpRestore, models.OpPayload{NodeID: id})
}

// Duplicate clones a node's text and status into a new sibling placed
// immediately after the source.
func (e *Engine) Duplicate(id string) (*models.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.nodes[id]
	if !ok {
		return nil, fmt.Errorf("engine: node %s: %w", id, apperr.ErrNotFound)
	}

	pos, err := e.posAmongLocked(src.ParentID, id, "")
	if err != nil {
		return nil, err
	}
	op := e.newOp(models.OpCreate, models.OpPayload{
		NodeID:   uuid.NewString(),
		ParentID: src.ParentID,
		Pos:      pos,
		Text:     src.Text,
		Status:   src.Status,
	})
	e.dispatchLocked(op, true)
	e.selection = op.Payload.NodeID
	return e.nodes[op.Payload.NodeID].Clone(), nil
}

func (e *Engine) simpleOp(id, opType string, payload models.OpPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes[id]; !ok {
		return fmt.Errorf("engine: node %s: %w", id, apperr.ErrNotFound)
	}
	e.dispatchLocked(e.newOp(opType, payload), true)
	return nil
}

// posAmongLocked computes a pos key for a node joining parentID's
// children after sibling afterID (empty = append at end). excludeID is
// ignored when scanning siblings, so a moving node does not bound its
// own new position.
func (e *Engine) posAmongLocked(parentID, afterID, excludeID string) (string, error) {
	siblings := models.OrderedChildren(e.nodes, parentID)
	if excludeID != "" {
		kept := siblings[:0]
		for _, s := range siblings {
			if s.ID != excludeID {
				kept = append(kept, s)
			}
		}
		siblings = kept
	}

	if afterID == "" {
		if len(siblings) == 0 {
			return rank.Initial(), nil
		}
		return rank.After(siblings[len(siblings)-1].Pos), nil
	}

	for i, s := range siblings {
		if s.ID == afterID {
			if i+1 < len(siblings) {
				return rank.Between(s.Pos, siblings[i+1].Pos), nil
			}
			return rank.After(s.Pos), nil
		}
	}
	return "", fmt.Errorf("engine: sibling %s under %s: %w", afterID, parentID, apperr.ErrNotFound)
}
