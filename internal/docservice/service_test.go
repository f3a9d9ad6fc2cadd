package docservice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/strata/internal/apperr"
	"github.com/starford/strata/internal/testutil"
	"github.com/starford/strata/internal/workspace"
)

func testService(t *testing.T) (*Service, string) {
	t.Helper()
	dir, store := testutil.TestWorkspace(t)
	db := testutil.TestOpDB(t)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewService(store, db, workspace.NewWriteGuard(), logger, Options{})
	t.Cleanup(svc.Close)
	return svc, dir
}

func TestCreateAndList(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	detail, err := svc.Create(ctx, "plan.md", "Project Plan")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if detail.Title != "Project Plan" {
		t.Errorf("title = %q", detail.Title)
	}
	if len(detail.Nodes) < 2 {
		t.Errorf("expected root plus bootstrap child, got %d nodes", len(detail.Nodes))
	}

	metas, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 1 || metas[0].Path != "plan.md" {
		t.Errorf("metas = %+v", metas)
	}

	if _, err := svc.Create(ctx, "plan.md", "Again"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate create: err = %v", err)
	}
}

func TestOpenImportsFile(t *testing.T) {
	svc, dir := testService(t)
	ctx := context.Background()

	content := "---\ndoc-type: strata\n---\n- [ ] Alpha\n  - [ ] Nested\n- [x] Done item\n"
	if err := os.WriteFile(filepath.Join(dir, "ext.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	detail, err := svc.Detail(ctx, "ext.md")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}

	var texts []string
	for _, n := range detail.Nodes {
		if n.ID != detail.RootID {
			texts = append(texts, n.Text)
		}
	}
	want := []string{"Alpha", "Nested", "Done item"}
	if len(texts) != len(want) {
		t.Fatalf("nodes = %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("node %d = %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestOpenRejectsForeignMarkdown(t *testing.T) {
	svc, dir := testService(t)
	_ = os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# plain markdown\n"), 0o644)

	_, err := svc.Open(context.Background(), "notes.md")
	if !errors.Is(err, apperr.ErrInvalidDocument) {
		t.Errorf("err = %v, want ErrInvalidDocument", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	svc, dir := testService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "doc.md", "Doc"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	eng, err := svc.Engine("doc.md")
	if err != nil {
		t.Fatalf("Engine: %v", err)
	}
	if _, err := eng.CreateNode("", "", "Fresh item"); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if err := svc.Save(ctx, "doc.md"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "doc.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "- [ ] Fresh item") {
		t.Errorf("saved file missing new bullet:\n%s", data)
	}
}

func TestExternalEditPreservesNodeIDs(t *testing.T) {
	svc, dir := testService(t)
	ctx := context.Background()

	content := "---\ndoc-type: strata\n---\n- [ ] Keep me\n- [ ] Other\n"
	_ = os.WriteFile(filepath.Join(dir, "ext.md"), []byte(content), 0o644)

	before, err := svc.Detail(ctx, "ext.md")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	var keepID string
	for _, n := range before.Nodes {
		if n.Text == "Keep me" {
			keepID = n.ID
		}
	}
	if keepID == "" {
		t.Fatal("precondition: Keep me node")
	}

	// Simulate an edit from another program.
	edited := "---\ndoc-type: strata\n---\n- [ ] Keep me\n- [ ] Other\n- [ ] Brand new\n"
	_ = os.WriteFile(filepath.Join(dir, "ext.md"), []byte(edited), 0o644)
	svc.HandleFSEvent("updated", "ext.md")

	after, err := svc.Detail(ctx, "ext.md")
	if err != nil {
		t.Fatalf("Detail after edit: %v", err)
	}
	found := false
	for _, n := range after.Nodes {
		if n.Text == "Keep me" {
			found = true
			if n.ID != keepID {
				t.Errorf("node id changed across re-import: %q -> %q", keepID, n.ID)
			}
		}
	}
	if !found {
		t.Error("Keep me node lost on re-import")
	}
	if len(after.Nodes) != len(before.Nodes)+1 {
		t.Errorf("node count = %d, want %d", len(after.Nodes), len(before.Nodes)+1)
	}
}

func TestStaleEventShortCircuits(t *testing.T) {
	svc, dir := testService(t)
	ctx := context.Background()

	content := "---\ndoc-type: strata\n---\n- [ ] Stable\n"
	_ = os.WriteFile(filepath.Join(dir, "doc.md"), []byte(content), 0o644)

	before, err := svc.Detail(ctx, "doc.md")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}

	// Same bytes again: the checksum short-circuit must keep the tree
	// (and its ids) completely untouched.
	svc.HandleFSEvent("updated", "doc.md")

	after, _ := svc.Detail(ctx, "doc.md")
	if len(after.Nodes) != len(before.Nodes) {
		t.Fatalf("node count changed on stale event")
	}
	for i := range after.Nodes {
		if after.Nodes[i].ID != before.Nodes[i].ID {
			t.Errorf("node %d id changed on stale event", i)
		}
	}
}

func TestDeleteRemovesFileAndLog(t *testing.T) {
	svc, dir := testService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "gone.md", "Gone"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Delete(ctx, "gone.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "gone.md")); !os.IsNotExist(err) {
		t.Error("file should be gone")
	}
	if _, err := svc.Engine("gone.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("engine should be closed, err = %v", err)
	}
}

func TestExportMatchesSavedFile(t *testing.T) {
	svc, dir := testService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "x.md", "X"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	text, err := svc.Export(ctx, "x.md")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "x.md"))
	if text != string(data) {
		t.Errorf("export and saved file differ:\n%q\nvs\n%q", text, data)
	}
}
