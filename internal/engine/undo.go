package engine

import (
	"fmt"

	"github.com/starford/strata/internal/models"
	"github.com/starford/strata/internal/oplog"
)

// Undo reverts the most recent undoable operation by dispatching its
// compensating operation, then restores the selection captured when the
// original ran. The undone entry moves to the redo stack.
func (e *Engine) Undo() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Debounced edits and buffered writes must land first so the
	// compensating op sequences after everything it reverts.
	e.flushAllTextLocked()
	e.flushBufferLocked()

	if len(e.undoStack) == 0 {
		return nil
	}
	entry := e.undoStack[len(e.undoStack)-1]
	e.undoStack = e.undoStack[:len(e.undoStack)-1]

	inv, err := e.inverseOp(entry)
	if err != nil {
		return err
	}
	e.dispatchLocked(inv, false)

	e.selection = entry.selection
	e.redoStack = append(e.redoStack, entry)
	return nil
}

// Redo re-applies the most recently undone operation as a brand-new
// operation (fresh op id, sequence number, and timestamp) carrying the
// same type and payload. Re-creating a node therefore yields the same
// node id.
func (e *Engine) Redo() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.redoStack) == 0 {
		return nil
	}
	e.flushBufferLocked()
	entry := e.redoStack[len(e.redoStack)-1]
	e.redoStack = e.redoStack[:len(e.redoStack)-1]

	op := e.newOp(entry.op.Type, entry.op.Payload)
	e.pushUndoLocked(historyEntry{
		op:        op,
		before:    e.captureBeforeLocked(op),
		selection: e.selection,
	})
	e.dispatchLocked(op, false)
	return nil
}

// inverseOp builds the compensating operation for an undo frame. Most
// inverses replay the captured before-image through the matching op
// type; a create is compensated by a tombstone, a tombstone by a create
// carrying the node's full prior fields.
func (e *Engine) inverseOp(entry historyEntry) (models.Operation, error) {
	p := entry.op.Payload

	if entry.op.Type == models.OpCreate {
		return e.newOp(models.OpTombstone, models.OpPayload{NodeID: p.NodeID}), nil
	}
	if len(entry.before) == 0 {
		return models.Operation{}, fmt.Errorf("engine: undo %s: no prior state for %s", entry.op.Type, p.NodeID)
	}
	before := &entry.before[0]

	switch entry.op.Type {

	case models.OpUpdateText:
		return e.newOp(models.OpUpdateText, models.OpPayload{NodeID: p.NodeID, Text: before.Text}), nil

	case models.OpMove:
		return e.newOp(models.OpMove, models.OpPayload{
			NodeID:   p.NodeID,
			ParentID: before.ParentID,
			Pos:      before.Pos,
		}), nil

	case models.OpSetStatus:
		return e.newOp(models.OpSetStatus, models.OpPayload{NodeID: p.NodeID, Status: before.Status}), nil

	case models.OpToggleCollapsed:
		return e.newOp(models.OpToggleCollapsed, models.OpPayload{NodeID: p.NodeID}), nil

	case models.OpTombstone:
		return e.newOp(models.OpCreate, models.OpPayload{
			NodeID:    before.ID,
			ParentID:  before.ParentID,
			Pos:       before.Pos,
			Text:      before.Text,
			Status:    before.Status,
			Collapsed: before.Collapsed,
			Tags:      before.Tags,
			DueDate:   before.DueDate,
		}), nil

	case models.OpRestore:
		return e.newOp(models.OpTombstone, models.OpPayload{NodeID: p.NodeID}), nil

	case models.OpAddTag:
		return e.newOp(models.OpRemoveTag, models.OpPayload{NodeID: p.NodeID, Tag: p.Tag}), nil

	case models.OpRemoveTag:
		return e.newOp(models.OpAddTag, models.OpPayload{NodeID: p.NodeID, Tag: p.Tag}), nil

	case models.OpSetDueDate:
		return e.newOp(models.OpSetDueDate, models.OpPayload{NodeID: p.NodeID, DueDate: before.DueDate}), nil
	}

	return models.Operation{}, fmt.Errorf("engine: no inverse for op type %q", entry.op.Type)
}

// Adopt replaces the engine's entire state with an externally built
// tree (file import, reconcile). The op log restarts from zero with one
// create per node, parents before children, followed by a fresh
// snapshot, so replaying the log still reproduces the adopted tree.
func (e *Engine) Adopt(nodes models.NodeMap, rootID string, statuses []models.StatusDef) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id := range e.debounced {
		if deb := e.debounced[id]; deb.timer != nil {
			deb.timer.Stop()
		}
		delete(e.debounced, id)
	}
	if e.flushTimer != nil {
		e.flushTimer.Stop()
		e.flushTimer = nil
	}
	e.pending = nil
	e.undoStack = nil
	e.redoStack = nil

	if err := e.store.Clear(); err != nil {
		return fmt.Errorf("engine: clear op log: %w", err)
	}
	e.seq.Set(0)

	e.nodes = make(models.NodeMap, len(nodes))
	e.rootID = rootID
	if len(statuses) > 0 {
		e.statuses = statuses
	}

	var ops []models.Operation
	var walk func(string)
	walk = func(id string) {
		n, ok := nodes[id]
		if !ok {
			return
		}
		ops = append(ops, e.newOp(models.OpCreate, models.OpPayload{
			NodeID:    n.ID,
			ParentID:  n.ParentID,
			Pos:       n.Pos,
			Text:      n.Text,
			Status:    n.Status,
			Collapsed: n.Collapsed,
			Tags:      n.Tags,
			DueDate:   n.DueDate,
		}))
		for _, c := range models.OrderedChildren(nodes, id) {
			walk(c.ID)
		}
	}
	walk(rootID)

	for _, op := range ops {
		oplog.Apply(e.nodes, op)
	}
	if err := e.store.AppendBatch(ops); err != nil {
		return fmt.Errorf("engine: adopt: %w", err)
	}
	e.writeSnapshotLocked()

	if e.selection == "" || e.nodes[e.selection] == nil {
		if kids := models.OrderedChildren(e.nodes, e.rootID); len(kids) > 0 {
			e.selection = kids[0].ID
		} else {
			e.selection = ""
		}
	}
	return nil
}

// RootID returns the id of the document's root node.
func (e *Engine) RootID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rootID
}

// Node returns a copy of one node, or nil if absent.
func (e *Engine) Node(id string) *models.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n, ok := e.nodes[id]; ok {
		return n.Clone()
	}
	return nil
}

// Children returns copies of a node's live children in sibling order.
func (e *Engine) Children(id string) []*models.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	kids := models.OrderedChildren(e.nodes, id)
	out := make([]*models.Node, len(kids))
	for i, k := range kids {
		out[i] = k.Clone()
	}
	return out
}

// Tree returns a deep copy of the full node map together with the root
// id and the status schema.
func (e *Engine) Tree() (models.NodeMap, string, []models.StatusDef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	statuses := make([]models.StatusDef, len(e.statuses))
	copy(statuses, e.statuses)
	return e.nodes.Clone(), e.rootID, statuses
}

// Selection returns the id of the currently selected node.
func (e *Engine) Selection() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection
}

// SetSelection moves the selection cursor. Unknown ids are ignored.
func (e *Engine) SetSelection(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes[id]; ok {
		e.selection = id
	}
}

// Statuses returns a copy of the document's status schema.
func (e *Engine) Statuses() []models.StatusDef {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.StatusDef, len(e.statuses))
	copy(out, e.statuses)
	return out
}
