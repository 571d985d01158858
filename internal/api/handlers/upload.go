package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cloo-solutions/docpipe/internal/api"
	"github.com/cloo-solutions/docpipe/internal/service"
)

type UploadService interface {
	InitUpload(ctx context.Context, input service.InitUploadInput) (*service.InitUploadResult, error)
}

type UploadHandler struct {
	svc UploadService
}

func NewUploadHandler(svc UploadService) *UploadHandler {
	return &UploadHandler{svc: svc}
}

type InitUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type InitUploadResponse struct {
	SourceKey string `json:"source_key"`
	UploadURL string `json:"upload_url"`
	ExpiresAt string `json:"expires_at"`
}

// InitUpload returns a presigned URL for uploading a source document. The
// document is submitted afterwards with the returned source_key.
func (h *UploadHandler) InitUpload(w http.ResponseWriter, r *http.Request) {
	var req InitUploadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.svc.InitUpload(r.Context(), service.InitUploadInput{
		Filename:    req.Filename,
		ContentType: req.ContentType,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, InitUploadResponse{
		SourceKey: result.SourceKey,
		UploadURL: result.UploadURL,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
