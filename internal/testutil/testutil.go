// Package testutil provides shared test helpers for setting up workspaces and op stores.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/strata/internal/opstore"
	"github.com/starford/strata/internal/storage"
)

// TestOpDB creates a temporary SQLite op store that is automatically cleaned up.
func TestOpDB(t *testing.T) *opstore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "strata-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := opstore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary workspace directory with a storage.Provider.
func TestWorkspace(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
