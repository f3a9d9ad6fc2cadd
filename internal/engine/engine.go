// Package engine owns the authoritative in-memory outline tree for one
// open document. It dispatches operations, maintains undo/redo through
// compensating operations, buffers durable writes, and drives periodic
// snapshotting.
//
// All tree mutations are synchronous and immediately visible in memory;
// durability is asynchronous and never blocks the caller. Operations
// still in the write buffer at crash time are lost.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/strata/internal/models"
	"github.com/starford/strata/internal/oplog"
	"github.com/starford/strata/internal/opstore"
	"github.com/starford/strata/internal/rank"
)

// Defaults for the engine cadence knobs.
const (
	DefaultSnapshotEvery = 50
	DefaultFlushInterval = 50 * time.Millisecond
	DefaultDebounce      = 400 * time.Millisecond
	DefaultUndoDepth     = 100
)

// Options configures an Engine. Zero values fall back to the defaults
// above.
type Options struct {
	ClientID      string
	SnapshotEvery int
	FlushInterval time.Duration
	Debounce      time.Duration
	UndoDepth     int
	Logger        *slog.Logger
	// OnChange, if non-nil, is called with the ids affected by each
	// applied operation. It runs on the mutating goroutine and must not
	// call back into the engine.
	OnChange func(ids []string)
}

// historyEntry is one undo/redo stack frame: the operation, deep copies
// of the nodes it touched taken before it was applied, and the selection
// cursor at that moment.
type historyEntry struct {
	op        models.Operation
	before    []models.Node
	selection string
}

// pendingText tracks one node's debounced text edit.
type pendingText struct {
	before    models.Node
	selection string
	timer     *time.Timer
}

// Engine is the document state machine. One instance per open document;
// each has its own op log, undo stack, and snapshot cadence.
type Engine struct {
	mu    sync.Mutex
	store opstore.Store
	opts  Options

	nodes    models.NodeMap
	rootID   string
	statuses []models.StatusDef

	seq       oplog.Counter
	selection string

	undoStack []historyEntry
	redoStack []historyEntry

	pending          []models.Operation
	flushTimer       *time.Timer
	debounced        map[string]*pendingText
	opsSinceSav      int
	snapshotInFlight bool
	closed           bool
}

// New creates an engine over the given durable op store. Call Init
// before anything else.
func New(store opstore.Store, opts Options) *Engine {
	if opts.ClientID == "" {
		opts.ClientID = uuid.NewString()
	}
	if opts.SnapshotEvery <= 0 {
		opts.SnapshotEvery = DefaultSnapshotEvery
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.UndoDepth <= 0 {
		opts.UndoDepth = DefaultUndoDepth
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		store:     store,
		opts:      opts,
		nodes:     make(models.NodeMap),
		statuses:  models.DefaultStatuses(),
		debounced: make(map[string]*pendingText),
	}
}

// Init loads the latest snapshot plus later ops, or replays the full op
// log, or bootstraps a brand-new document when the store is empty.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.store.LatestSnapshot()
	if err != nil {
		return fmt.Errorf("engine: load snapshot: %w", err)
	}

	switch {
	case snap != nil:
		ops, err := e.store.After(snap.SeqAfter)
		if err != nil {
			return fmt.Errorf("engine: load ops after %d: %w", snap.SeqAfter, err)
		}
		e.nodes = oplog.Rebuild(snap.Nodes, ops)
		e.rootID = snap.RootID
		next := snap.SeqAfter + 1
		for _, op := range ops {
			if op.Seq >= next {
				next = op.Seq + 1
			}
		}
		e.seq.Set(next)

	default:
		ops, err := e.store.All()
		if err != nil {
			return fmt.Errorf("engine: load op log: %w", err)
		}
		if len(ops) > 0 {
			e.nodes = oplog.Rebuild(nil, ops)
			e.seq.Set(ops[len(ops)-1].Seq + 1)
			e.rootID = findRoot(e.nodes)
		} else if err := e.bootstrapLocked(); err != nil {
			return err
		}
	}

	if e.rootID == "" {
		return fmt.Errorf("engine: no root node in replayed state")
	}
	if e.selection == "" {
		if kids := models.OrderedChildren(e.nodes, e.rootID); len(kids) > 0 {
			e.selection = kids[0].ID
		}
	}
	return nil
}

// bootstrapLocked writes the initial creation ops for a new document:
// a root plus one empty child to put the cursor on.
func (e *Engine) bootstrapLocked() error {
	root := models.OpPayload{
		NodeID: uuid.NewString(),
		Pos:    rank.Initial(),
		Status: models.DefaultStatusID(e.statuses),
	}
	child := models.OpPayload{
		NodeID:   uuid.NewString(),
		ParentID: root.NodeID,
		Pos:      rank.Initial(),
		Status:   models.DefaultStatusID(e.statuses),
	}

	ops := []models.Operation{
		models.NewOperation(e.opts.ClientID, e.seq.Next(), models.OpCreate, root),
		models.NewOperation(e.opts.ClientID, e.seq.Next(), models.OpCreate, child),
	}
	for _, op := range ops {
		oplog.Apply(e.nodes, op)
	}
	if err := e.store.AppendBatch(ops); err != nil {
		return fmt.Errorf("engine: bootstrap: %w", err)
	}
	e.rootID = root.NodeID
	e.selection = child.NodeID
	return nil
}

func findRoot(nodes models.NodeMap) string {
	for id, n := range nodes {
		if n.ParentID == "" {
			return id
		}
	}
	return ""
}

// dispatchLocked applies one operation: optionally records an undo
// frame (clearing redo history), folds the op into the live tree,
// queues it for durable persistence, and advances the snapshot cadence.
func (e *Engine) dispatchLocked(op models.Operation, recordUndo bool) {
	if recordUndo {
		e.pushUndoLocked(historyEntry{
			op:        op,
			before:    e.captureBeforeLocked(op),
			selection: e.selection,
		})
		e.redoStack = nil
	}

	id, applied := oplog.Apply(e.nodes, op)
	e.persistLocked(op)

	if applied && e.opts.OnChange != nil {
		e.opts.OnChange([]string{id})
	}
}

// captureBeforeLocked deep-copies every node the op will touch. A
// create touches no existing node; its compensation is a tombstone.
func (e *Engine) captureBeforeLocked(op models.Operation) []models.Node {
	if op.Type == models.OpCreate {
		return nil
	}
	if n, ok := e.nodes[op.Payload.NodeID]; ok {
		return []models.Node{*n.Clone()}
	}
	return nil
}

func (e *Engine) pushUndoLocked(entry historyEntry) {
	e.undoStack = append(e.undoStack, entry)
	if len(e.undoStack) > e.opts.UndoDepth {
		e.undoStack = e.undoStack[len(e.undoStack)-e.opts.UndoDepth:]
	}
}

// persistLocked queues the op for batched durable write, scheduling a
// timer flush, and triggers a snapshot when the cadence threshold is
// reached.
func (e *Engine) persistLocked(op models.Operation) {
	e.pending = append(e.pending, op)
	if e.flushTimer == nil && !e.closed {
		e.flushTimer = time.AfterFunc(e.opts.FlushInterval, e.Flush)
	}

	e.opsSinceSav++
	if e.opsSinceSav >= e.opts.SnapshotEvery {
		e.flushBufferLocked()
		e.writeSnapshotLocked()
	}
}

// Flush synchronously writes all buffered operations to the store.
func (e *Engine) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushBufferLocked()
}

func (e *Engine) flushBufferLocked() {
	if e.flushTimer != nil {
		e.flushTimer.Stop()
		e.flushTimer = nil
	}
	if len(e.pending) == 0 {
		return
	}
	batch := e.pending
	e.pending = nil
	if err := e.store.AppendBatch(batch); err != nil {
		e.opts.Logger.Error("engine: flush ops failed",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()))
	}
}

// writeSnapshotLocked materializes the current tree. Only one snapshot
// write may be in flight; the pending-op flush above it guarantees the
// snapshot never undercounts.
func (e *Engine) writeSnapshotLocked() {
	if e.snapshotInFlight {
		return
	}
	e.snapshotInFlight = true
	defer func() { e.snapshotInFlight = false }()

	snap := models.Snapshot{
		ID:       uuid.NewString(),
		RootID:   e.rootID,
		SeqAfter: e.seq.Peek() - 1,
		TS:       time.Now().UnixMilli(),
	}
	for _, n := range e.nodes {
		snap.Nodes = append(snap.Nodes, *n.Clone())
	}
	if err := e.store.PutSnapshot(snap); err != nil {
		e.opts.Logger.Error("engine: snapshot failed", slog.String("error", err.Error()))
		return
	}
	e.opsSinceSav = 0
}

// Snapshot forces an immediate flush and snapshot write.
func (e *Engine) Snapshot() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushAllTextLocked()
	e.flushBufferLocked()
	e.writeSnapshotLocked()
}

// Close flushes all pending state and stops every timer. The engine
// must not be used afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.flushAllTextLocked()
	e.flushBufferLocked()
}

func (e *Engine) newOp(opType string, payload models.OpPayload) models.Operation {
	return models.NewOperation(e.opts.ClientID, e.seq.Next(), opType, payload)
}
