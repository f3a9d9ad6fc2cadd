package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/strata/internal/apperr"
	"github.com/starford/strata/internal/docservice"
	"github.com/starford/strata/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *docservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *docservice.Service) *Handler {
	return &Handler{svc: svc}
}

// docPath extracts the document path from the URL wildcard. Supports
// encoded slashes from OpenAPI clients (e.g. plans%2Fq3.md).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List Strata documents in the workspace
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		slog.Error("list documents failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: items, Total: len(items)})
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Get a document's full outline by path
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	DocumentDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	detail, err := h.svc.Detail(r.Context(), path)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrInvalidDocument):
			writeJSON(w, http.StatusUnprocessableEntity, errorBody("not a strata document"))
		default:
			slog.Error("get document failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// CreateDocument handles POST /api/documents.
//
//	@Summary		Create a new document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDocumentRequest	true	"Document to create"
//	@Success		201		{object}	DocumentDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if !strings.HasSuffix(req.Path, ".md") {
		writeJSON(w, http.StatusBadRequest, errorBody("path must end in .md"))
		return
	}
	detail, err := h.svc.Create(r.Context(), req.Path, req.Title)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("document already exists"))
		} else {
			slog.Error("create document failed", slog.String("path", req.Path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

// DeleteDocument handles DELETE /api/documents/*.
//
//	@Summary		Delete a document
//	@Tags			documents
//	@Param			path	path	string	true	"Document path"
//	@Success		204		"Document deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.Delete(r.Context(), path); err != nil {
		slog.Error("delete document failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DispatchOp handles POST /api/ops/*.
//
//	@Summary		Apply one outline operation to a document
//	@Tags			ops
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string		true	"Document path"
//	@Param			body	body		OpRequest	true	"Operation"
//	@Success		200		{object}	OpResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ops/{path} [post]
func (h *Handler) DispatchOp(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req OpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	eng, err := h.svc.Open(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("open document failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	var node *models.Node
	switch req.Type {
	case "create":
		node, err = eng.CreateNode(req.ParentID, req.AfterID, req.Text)
	case "updateText":
		err = eng.UpdateText(req.NodeID, req.Text)
	case "move":
		err = eng.MoveNode(req.NodeID, req.ParentID, req.AfterID)
	case "setStatus":
		err = eng.SetStatus(req.NodeID, req.Status)
	case "toggleCollapsed":
		err = eng.ToggleCollapsed(req.NodeID)
	case "setDueDate":
		err = eng.SetDueDate(req.NodeID, req.DueDate)
	case "addTag":
		err = eng.AddTag(req.NodeID, req.Tag)
	case "removeTag":
		err = eng.RemoveTag(req.NodeID, req.Tag)
	case "tombstone":
		err = eng.Tombstone(req.NodeID)
	case "restore":
		err = eng.Restore(req.NodeID)
	case "duplicate":
		node, err = eng.Duplicate(req.NodeID)
	case "setSelection":
		eng.SetSelection(req.NodeID)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("unknown op type"))
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("node not found"))
		case errors.Is(err, apperr.ErrCyclicMove):
			writeJSON(w, http.StatusConflict, errorBody("move would create a cycle"))
		default:
			slog.Error("op failed", slog.String("path", path), slog.String("type", req.Type), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, OpResponse{Node: node, Selection: eng.Selection()})
}

// Undo handles POST /api/undo/*.
//
//	@Summary		Undo the most recent operation in a document
//	@Tags			ops
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	OpResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/undo/{path} [post]
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	eng, err := h.svc.Engine(path)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("document not open"))
		return
	}
	if err := eng.Undo(); err != nil {
		slog.Error("undo failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, OpResponse{Selection: eng.Selection()})
}

// Redo handles POST /api/redo/*.
//
//	@Summary		Re-apply the most recently undone operation
//	@Tags			ops
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	OpResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/redo/{path} [post]
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	eng, err := h.svc.Engine(path)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("document not open"))
		return
	}
	if err := eng.Redo(); err != nil {
		slog.Error("redo failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, OpResponse{Selection: eng.Selection()})
}

// SaveDocument handles POST /api/save/*.
//
//	@Summary		Serialize a document and write it to disk
//	@Tags			documents
//	@Param			path	path	string	true	"Document path"
//	@Success		204		"Document saved"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/save/{path} [post]
func (h *Handler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.Save(r.Context(), path); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("document not open"))
		} else {
			slog.Error("save failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportDocument handles GET /api/export/*.
//
//	@Summary		Get the canonical text form of a document
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	ExportResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/export/{path} [get]
func (h *Handler) ExportDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	content, err := h.svc.Export(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("export failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, ExportResponse{Path: path, Content: content})
}
