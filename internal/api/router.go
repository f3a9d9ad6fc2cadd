package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/strata/internal/docservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *docservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents CRUD.
	r.Get("/documents", h.ListDocuments)
	r.Post("/documents", h.CreateDocument)
	r.Get("/documents/*", h.GetDocument)
	r.Delete("/documents/*", h.DeleteDocument)

	// Outline operations on an open document.
	r.Post("/ops/*", h.DispatchOp)
	r.Post("/undo/*", h.Undo)
	r.Post("/redo/*", h.Redo)

	// Persistence.
	r.Post("/save/*", h.SaveDocument)
	r.Get("/export/*", h.ExportDocument)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
