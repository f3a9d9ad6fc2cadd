// Package docservice coordinates storage, op logs, and live engines for
// the documents in one workspace.
package docservice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/starford/strata/internal/apperr"
	"github.com/starford/strata/internal/checksum"
	"github.com/starford/strata/internal/codec"
	"github.com/starford/strata/internal/engine"
	"github.com/starford/strata/internal/models"
	"github.com/starford/strata/internal/opstore"
	"github.com/starford/strata/internal/reconcile"
	"github.com/starford/strata/internal/storage"
	"github.com/starford/strata/internal/workspace"
)

// Detail is the full representation of an open document.
type Detail struct {
	Path      string             `json:"path"`
	Title     string             `json:"title"`
	RootID    string             `json:"rootId"`
	Nodes     []models.Node      `json:"nodes"`
	Statuses  []models.StatusDef `json:"statuses"`
	Selection string             `json:"selection"`
	Checksum  string             `json:"checksum"`
}

// Options configures a Service.
type Options struct {
	Engine engine.Options
	// OnNodesChanged, if non-nil, receives the node ids touched by each
	// applied operation in an open document.
	OnNodesChanged func(path string, ids []string)
}

// Service owns one live engine per open document and keeps the files
// on disk in sync with them.
type Service struct {
	store  storage.Provider
	db     *opstore.DB
	guard  *workspace.WriteGuard
	logger *slog.Logger
	opts   Options

	mu   sync.Mutex
	open map[string]*openDoc
}

type openDoc struct {
	eng *engine.Engine
	// lastSync is the checksum of the file content last imported from
	// or written to disk; change events carrying it are stale.
	lastSync string
}

// NewService creates a document service.
func NewService(store storage.Provider, db *opstore.DB, guard *workspace.WriteGuard, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		db:     db,
		guard:  guard,
		logger: logger,
		opts:   opts,
		open:   make(map[string]*openDoc),
	}
}

// List returns metadata for every document in the workspace.
func (s *Service) List(_ context.Context) ([]models.DocumentMeta, error) {
	metas, err := s.store.List("")
	if err != nil {
		return nil, err
	}
	if metas == nil {
		metas = []models.DocumentMeta{}
	}
	return metas, nil
}

// Open loads the document at path into a live engine, importing the
// file content and reconciling it with the op-log state. Opening an
// already open document is a no-op returning the existing engine.
func (s *Service) Open(_ context.Context, path string) (*engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(path)
}

func (s *Service) openLocked(path string) (*engine.Engine, error) {
	if od, ok := s.open[path]; ok {
		return od.eng, nil
	}

	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if !codec.IsDocument(data) {
		return nil, apperr.ErrInvalidDocument
	}

	eng := s.newEngine(path)
	if err := eng.Init(); err != nil {
		return nil, err
	}

	od := &openDoc{eng: eng}
	if err := s.importLocked(od, path, data); err != nil {
		eng.Close()
		return nil, err
	}
	s.open[path] = od
	s.logger.Info("docservice: opened", slog.String("path", path))
	return eng, nil
}

func (s *Service) newEngine(path string) *engine.Engine {
	opts := s.opts.Engine
	if s.opts.OnNodesChanged != nil {
		cb := s.opts.OnNodesChanged
		opts.OnChange = func(ids []string) { cb(path, ids) }
	}
	return engine.New(s.db.Doc(path), opts)
}

// importLocked folds file content into an open engine: the parsed tree
// is reconciled against the live one so stable node ids survive, then
// adopted wholesale.
func (s *Service) importLocked(od *openDoc, path string, data []byte) error {
	sum := checksum.Sum(data)
	if sum == od.lastSync {
		return nil
	}

	parsed, err := codec.Parse(data)
	if err != nil {
		return err
	}

	oldNodes, oldRoot, _ := od.eng.Tree()
	merged, rootID := reconcile.Reconcile(oldNodes, oldRoot, parsed.Nodes, parsed.RootID)
	if err := od.eng.Adopt(merged, rootID, parsed.Statuses); err != nil {
		return err
	}
	od.lastSync = sum
	s.logger.Debug("docservice: imported", slog.String("path", path), slog.String("checksum", sum))
	return nil
}

// Engine returns the live engine for an open document.
func (s *Service) Engine(path string) (*engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	od, ok := s.open[path]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return od.eng, nil
}

// Detail opens the document if needed and returns its full state.
func (s *Service) Detail(ctx context.Context, path string) (*Detail, error) {
	eng, err := s.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	nodes, rootID, statuses := eng.Tree()
	out := make([]models.Node, 0, len(nodes))
	var appendSubtree func(string)
	appendSubtree = func(id string) {
		n, ok := nodes[id]
		if !ok {
			return
		}
		out = append(out, *n)
		for _, c := range models.OrderedChildren(nodes, id) {
			appendSubtree(c.ID)
		}
	}
	appendSubtree(rootID)

	text := codec.Serialize(&codec.Document{Nodes: nodes, RootID: rootID, Statuses: statuses})
	title := ""
	if root, ok := nodes[rootID]; ok {
		title = root.Title()
	}
	return &Detail{
		Path:      path,
		Title:     title,
		RootID:    rootID,
		Nodes:     out,
		Statuses:  statuses,
		Selection: eng.Selection(),
		Checksum:  checksum.Sum([]byte(text)),
	}, nil
}

// Save serializes an open document and writes it to disk atomically.
// The write is marked in the guard so the watcher does not re-import it.
func (s *Service) Save(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	od, ok := s.open[path]
	if !ok {
		return apperr.ErrNotFound
	}
	od.eng.FlushAllText()

	nodes, rootID, statuses := od.eng.Tree()
	text := codec.Serialize(&codec.Document{Nodes: nodes, RootID: rootID, Statuses: statuses})
	sum := checksum.Sum([]byte(text))

	s.guard.Mark(path, sum)
	if err := s.store.Write(path, []byte(text)); err != nil {
		s.guard.Forget(path)
		return err
	}
	od.lastSync = sum
	od.eng.Snapshot()
	s.logger.Info("docservice: saved", slog.String("path", path), slog.String("checksum", sum))
	return nil
}

// Export returns the canonical text form of a document without touching
// disk.
func (s *Service) Export(ctx context.Context, path string) (string, error) {
	eng, err := s.Open(ctx, path)
	if err != nil {
		return "", err
	}
	eng.FlushAllText()
	nodes, rootID, statuses := eng.Tree()
	return codec.Serialize(&codec.Document{Nodes: nodes, RootID: rootID, Statuses: statuses}), nil
}

// Create makes a new document file with a bootstrap outline and opens
// it. title becomes the root node's text.
func (s *Service) Create(ctx context.Context, path, title string) (*Detail, error) {
	s.mu.Lock()
	if _, err := s.store.Read(path); err == nil {
		s.mu.Unlock()
		return nil, apperr.ErrAlreadyExists
	}

	eng := s.newEngine(path)
	if err := eng.Init(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if title != "" {
		if err := eng.UpdateText(eng.RootID(), title); err != nil {
			eng.Close()
			s.mu.Unlock()
			return nil, err
		}
		eng.FlushAllText()
	}
	s.open[path] = &openDoc{eng: eng}
	s.mu.Unlock()

	if err := s.Save(ctx, path); err != nil {
		return nil, err
	}
	s.logger.Info("docservice: created", slog.String("path", path))
	return s.Detail(ctx, path)
}

// Delete closes the document if open, removes its file, and clears its
// op log.
func (s *Service) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	if od, ok := s.open[path]; ok {
		od.eng.Close()
		delete(s.open, path)
	}
	s.mu.Unlock()

	if err := s.store.Delete(path); err != nil {
		return err
	}
	if err := s.db.Doc(path).Clear(); err != nil {
		s.logger.Warn("docservice: clear op log failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	s.logger.Info("docservice: deleted", slog.String("path", path))
	return nil
}

// HandleFSEvent reacts to watcher events for external file changes.
// Edits to open documents are re-imported through the reconciler;
// everything else only matters to list views reading from disk.
func (s *Service) HandleFSEvent(kind, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	od, ok := s.open[path]
	if !ok {
		return
	}

	switch kind {
	case "created", "updated":
		data, err := s.store.Read(path)
		if err != nil {
			s.logger.Warn("docservice: re-read failed", slog.String("path", path), slog.String("error", err.Error()))
			return
		}
		if !codec.IsDocument(data) {
			return
		}
		if err := s.importLocked(od, path, data); err != nil {
			s.logger.Warn("docservice: re-import failed", slog.String("path", path), slog.String("error", err.Error()))
		}

	case "deleted":
		od.eng.Close()
		delete(s.open, path)
		s.logger.Info("docservice: closed after external delete", slog.String("path", path))
	}
}

// Close flushes and closes every open engine.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, od := range s.open {
		od.eng.Close()
		delete(s.open, path)
	}
}
