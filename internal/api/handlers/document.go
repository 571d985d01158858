package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/docpipe/internal/api"
	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/pagination"
	"github.com/cloo-solutions/docpipe/internal/service"
)

type DocumentService interface {
	Create(ctx context.Context, input service.CreateDocumentInput) (*domain.Document, *domain.ProcessingStatus, error)
	Get(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error)
	Retry(ctx context.Context, id string) (*domain.ProcessingStatus, error)
	Cancel(ctx context.Context, id string) error
}

type StatusService interface {
	GetStatus(ctx context.Context, documentID string) (*domain.ProcessingStatus, error)
}

type DocumentHandler struct {
	docs     DocumentService
	statuses StatusService
}

func NewDocumentHandler(docs DocumentService, statuses StatusService) *DocumentHandler {
	return &DocumentHandler{docs: docs, statuses: statuses}
}

type CreateDocumentRequest struct {
	Title        string `json:"title"`
	Text         string `json:"text"`
	SourceKey    string `json:"source_key"`
	ExtractFacts *bool  `json:"extract_facts"`
}

type DocumentResponse struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	SourceKey    string          `json:"source_key,omitempty"`
	ExtractFacts bool            `json:"extract_facts"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	Status       *StatusResponse `json:"status,omitempty"`
}

// StatusResponse is the polling contract for a document's pipeline progress.
type StatusResponse struct {
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Error       string `json:"error,omitempty"`
	ChunksCount int    `json:"chunks_count"`
	UpdatedAt   string `json:"updated_at"`
}

type ListDocumentsResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:           d.ID,
		Title:        d.Title,
		SourceKey:    d.SourceKey,
		ExtractFacts: d.ExtractFacts,
		CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func statusToResponse(s *domain.ProcessingStatus) *StatusResponse {
	resp := &StatusResponse{
		Status:      string(s.Stage),
		Progress:    s.Progress,
		Error:       s.Error,
		ChunksCount: s.ChunkCount,
	}
	if !s.UpdatedAt.IsZero() {
		resp.UpdatedAt = s.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Text == "" && req.SourceKey == "" {
		api.Error(w, http.StatusBadRequest, "text or source_key is required")
		return
	}

	doc, status, err := h.docs.Create(r.Context(), service.CreateDocumentInput{
		Title:        req.Title,
		Text:         req.Text,
		SourceKey:    req.SourceKey,
		ExtractFacts: req.ExtractFacts,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := documentToResponse(doc)
	resp.Status = statusToResponse(status)
	api.Success(w, http.StatusCreated, resp)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.docs.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := pagination.ParseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid limit")
		return
	}

	out, err := h.docs.List(r.Context(), service.ListDocumentsInput{
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*DocumentResponse, len(out.Items))
	for i, d := range out.Items {
		items[i] = documentToResponse(d)
	}
	api.Success(w, http.StatusOK, ListDocumentsResponse{
		Items:   items,
		Cursor:  out.Cursor,
		HasMore: out.HasMore,
	})
}

// Status reports pipeline progress. Unknown documents are not an error: they
// report status "unknown" at progress 0.
func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	status, err := h.statuses.GetStatus(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, statusToResponse(status))
}

func (h *DocumentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	status, err := h.docs.Retry(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, statusToResponse(status))
}

func (h *DocumentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.docs.Cancel(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}
