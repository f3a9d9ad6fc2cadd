package models

import (
	"time"

	"github.com/google/uuid"
)

// Operation types.
const (
	OpCreate          = "create"
	OpUpdateText      = "updateText"
	OpMove            = "move"
	OpSetStatus       = "setStatus"
	OpToggleCollapsed = "toggleCollapsed"
	OpTombstone       = "tombstone"
	OpRestore         = "restore"
	OpAddTag          = "addTag"
	OpRemoveTag       = "removeTag"
	OpSetDueDate      = "setDueDate"
)

// OpPayload carries the variant fields of an operation. Which fields are
// meaningful depends on the operation type; NodeID is always set.
// A create payload carries the full initial node state so that undoing a
// tombstone can re-create the node by id with its original fields.
type OpPayload struct {
	NodeID    string   `json:"nodeId"`
	ParentID  string   `json:"parentId,omitempty"`
	Pos       string   `json:"pos,omitempty"`
	Text      string   `json:"text,omitempty"`
	Status    string   `json:"status,omitempty"`
	Tag       string   `json:"tag,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Collapsed bool     `json:"collapsed,omitempty"`
	DueDate   int64    `json:"dueDate,omitempty"`
}

// Operation is an immutable, sequenced record of one state change.
// Operations are the single source of truth; the node map is always a
// derived projection.
type Operation struct {
	OpID     string    `json:"opId"`
	ClientID string    `json:"clientId"`
	Seq      int64     `json:"seq"`
	TS       int64     `json:"ts"` // epoch millis
	Type     string    `json:"type"`
	Payload  OpPayload `json:"payload"`
}

// NewOperation stamps a fresh operation with an id and timestamp. The
// caller supplies the sequence number from its engine counter.
func NewOperation(clientID string, seq int64, opType string, payload OpPayload) Operation {
	return Operation{
		OpID:     uuid.NewString(),
		ClientID: clientID,
		Seq:      seq,
		TS:       time.Now().UnixMilli(),
		Type:     opType,
		Payload:  payload,
	}
}

// Snapshot is a point-in-time materialization of a document tree plus
// the last operation sequence number folded into it. Snapshots are
// checkpoints, always reproducible by folding the op log from the start.
type Snapshot struct {
	ID       string `json:"id"`
	Nodes    []Node `json:"nodes"`
	RootID   string `json:"rootId"`
	SeqAfter int64  `json:"seqAfter"`
	TS       int64  `json:"ts"`
}
