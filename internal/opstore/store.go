package opstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/starford/strata/internal/models"
)

// Store is the durable append-only op log for one document. Consumers
// (the engine) depend on this interface rather than the concrete
// *DocStore to facilitate testing with alternative backends.
type Store interface {
	Append(op models.Operation) error
	AppendBatch(ops []models.Operation) error
	After(seq int64) ([]models.Operation, error)
	All() ([]models.Operation, error)
	Count() (int, error)
	PutSnapshot(s models.Snapshot) error
	LatestSnapshot() (*models.Snapshot, error)
	Clear() error
}

// DocStore implements Store against one document's rows.
type DocStore struct {
	conn  *sql.DB
	docID string
}

// Verify *DocStore satisfies Store at compile time.
var _ Store = (*DocStore)(nil)

// Append persists a single operation.
func (s *DocStore) Append(op models.Operation) error {
	return s.AppendBatch([]models.Operation{op})
}

// AppendBatch persists a batch of operations in one transaction.
func (s *DocStore) AppendBatch(ops []models.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("opstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.Prepare(`
		INSERT INTO ops (doc_id, seq, op_id, client_id, ts, type, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("opstore: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, op := range ops {
		payload, err := json.Marshal(op.Payload)
		if err != nil {
			return fmt.Errorf("opstore: marshal payload: %w", err)
		}
		if _, err := stmt.Exec(s.docID, op.Seq, op.OpID, op.ClientID, op.TS, op.Type, string(payload)); err != nil {
			return fmt.Errorf("opstore: insert op seq %d: %w", op.Seq, err)
		}
	}
	return tx.Commit()
}

// After returns all operations with seq greater than the given value,
// ascending.
func (s *DocStore) After(seq int64) ([]models.Operation, error) {
	return s.query(`SELECT seq, op_id, client_id, ts, type, payload FROM ops
		WHERE doc_id = ? AND seq > ? ORDER BY seq ASC`, s.docID, seq)
}

// All returns every operation for the document, ascending by seq.
func (s *DocStore) All() ([]models.Operation, error) {
	return s.query(`SELECT seq, op_id, client_id, ts, type, payload FROM ops
		WHERE doc_id = ? ORDER BY seq ASC`, s.docID)
}

func (s *DocStore) query(q string, args ...any) ([]models.Operation, error) {
	rows, err := s.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("opstore: query ops: %w", err)
	}
	defer rows.Close()

	var out []models.Operation
	for rows.Next() {
		var op models.Operation
		var payload string
		if err := rows.Scan(&op.Seq, &op.OpID, &op.ClientID, &op.TS, &op.Type, &payload); err != nil {
			return nil, fmt.Errorf("opstore: scan op: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &op.Payload); err != nil {
			return nil, fmt.Errorf("opstore: unmarshal payload seq %d: %w", op.Seq, err)
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// Count returns the number of persisted operations.
func (s *DocStore) Count() (int, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM ops WHERE doc_id = ?`, s.docID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("opstore: count: %w", err)
	}
	return n, nil
}

// PutSnapshot persists a snapshot. Older snapshots are superseded, not
// deleted; the loader always picks the most recent one.
func (s *DocStore) PutSnapshot(snap models.Snapshot) error {
	nodes, err := json.Marshal(snap.Nodes)
	if err != nil {
		return fmt.Errorf("opstore: marshal snapshot nodes: %w", err)
	}
	_, err = s.conn.Exec(`
		INSERT INTO snapshots (id, doc_id, root_id, seq_after, ts, nodes)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.ID, s.docID, snap.RootID, snap.SeqAfter, snap.TS, string(nodes))
	if err != nil {
		return fmt.Errorf("opstore: put snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the snapshot with the highest seq_after, or nil
// when the document has none.
func (s *DocStore) LatestSnapshot() (*models.Snapshot, error) {
	row := s.conn.QueryRow(`
		SELECT id, root_id, seq_after, ts, nodes FROM snapshots
		WHERE doc_id = ? ORDER BY seq_after DESC, ts DESC LIMIT 1
	`, s.docID)

	var snap models.Snapshot
	var nodes string
	err := row.Scan(&snap.ID, &snap.RootID, &snap.SeqAfter, &snap.TS, &nodes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opstore: latest snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(nodes), &snap.Nodes); err != nil {
		return nil, fmt.Errorf("opstore: unmarshal snapshot nodes: %w", err)
	}
	return &snap, nil
}

// Clear removes every op and snapshot for the document. Used when a
// document's log is re-derived from an imported or reconciled tree.
func (s *DocStore) Clear() error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("opstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM ops WHERE doc_id = ?`, s.docID); err != nil {
		return fmt.Errorf("opstore: clear ops: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM snapshots WHERE doc_id = ?`, s.docID); err != nil {
		return fmt.Errorf("opstore: clear snapshots: %w", err)
	}

	return tx.Commit()
}
