// Package opstore provides the SQLite-backed durable operation log and
// snapshot store. One database file holds every document's log; a Store
// handle is scoped to a single document id.
package opstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ops (
	doc_id    TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	op_id     TEXT NOT NULL,
	client_id TEXT NOT NULL,
	ts        INTEGER NOT NULL,
	type      TEXT NOT NULL,
	payload   TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (doc_id, seq)
);

CREATE TABLE IF NOT EXISTS snapshots (
	id        TEXT PRIMARY KEY,
	doc_id    TEXT NOT NULL,
	root_id   TEXT NOT NULL,
	seq_after INTEGER NOT NULL,
	ts        INTEGER NOT NULL,
	nodes     TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_snapshots_doc ON snapshots(doc_id, seq_after);
`

// DB wraps a sql.DB holding op logs and snapshots for a workspace.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opstore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Doc returns a Store scoped to the given document id.
func (db *DB) Doc(docID string) *DocStore {
	return &DocStore{conn: db.conn, docID: docID}
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
