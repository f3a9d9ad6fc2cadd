package api

import (
	"github.com/starford/strata/internal/docservice"
	"github.com/starford/strata/internal/models"
)

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	Path  string `json:"path" example:"plans/q3.md" validate:"required"`
	Title string `json:"title" example:"Q3 Plan"`
}

// OpRequest is the request body for dispatching one outline operation
// to an open document. Which fields matter depends on Type.
type OpRequest struct {
	Type     string `json:"type" example:"create" validate:"required"`
	NodeID   string `json:"nodeId,omitempty"`
	ParentID string `json:"parentId,omitempty"`
	AfterID  string `json:"afterId,omitempty"`
	Text     string `json:"text,omitempty"`
	Status   string `json:"status,omitempty"`
	Tag      string `json:"tag,omitempty"`
	DueDate  int64  `json:"dueDate,omitempty"`
}

// DocumentDetail is the full document response type (aliased from the
// domain layer).
type DocumentDetail = docservice.Detail

// DocumentListResponse wraps workspace document listings.
type DocumentListResponse struct {
	Documents []models.DocumentMeta `json:"documents" validate:"required"`
	Total     int                   `json:"total" example:"12" validate:"required"`
}

// OpResponse is returned after a successful operation dispatch.
type OpResponse struct {
	Node      *models.Node `json:"node,omitempty"`
	Selection string       `json:"selection"`
}

// ExportResponse wraps the canonical text form of a document.
type ExportResponse struct {
	Path    string `json:"path" validate:"required"`
	Content string `json:"content" validate:"required"`
}
