package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/service"
)

type MockUploadService struct {
	mock.Mock
}

func (m *MockUploadService) InitUpload(ctx context.Context, input service.InitUploadInput) (*service.InitUploadResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.InitUploadResult), args.Error(1)
}

func TestUploadHandler_InitUpload_Success(t *testing.T) {
	svc := new(MockUploadService)
	handler := NewUploadHandler(svc)

	svc.On("InitUpload", mock.Anything, service.InitUploadInput{Filename: "notes.md", ContentType: "text/markdown"}).
		Return(&service.InitUploadResult{
			SourceKey: "uploads/u-1/notes.md",
			UploadURL: "https://s3.local/presigned",
			ExpiresAt: testNow.Add(15 * time.Minute),
		}, nil)

	body := bytes.NewBufferString(`{"filename":"notes.md","content_type":"text/markdown"}`)
	req := httptest.NewRequest(http.MethodPost, "/documents/uploads", body)
	w := httptest.NewRecorder()

	handler.InitUpload(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "uploads/u-1/notes.md", data["source_key"])
	assert.Equal(t, "https://s3.local/presigned", data["upload_url"])
	assert.Equal(t, "2026-03-01T10:15:00Z", data["expires_at"])
	svc.AssertExpectations(t)
}

func TestUploadHandler_InitUpload_EmptyBody(t *testing.T) {
	svc := new(MockUploadService)
	handler := NewUploadHandler(svc)

	svc.On("InitUpload", mock.Anything, service.InitUploadInput{}).
		Return(&service.InitUploadResult{SourceKey: "uploads/u-1/document.txt", UploadURL: "u", ExpiresAt: testNow}, nil)

	req := httptest.NewRequest(http.MethodPost, "/documents/uploads", nil)
	w := httptest.NewRecorder()

	handler.InitUpload(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestUploadHandler_InitUpload_InvalidBody(t *testing.T) {
	handler := NewUploadHandler(new(MockUploadService))

	req := httptest.NewRequest(http.MethodPost, "/documents/uploads", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()

	handler.InitUpload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadHandler_InitUpload_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"unsupported type", domain.Wrap(domain.ErrInvalidInput, errors.New("unsupported content type")), http.StatusBadRequest},
		{"storage failure", errors.New("signing failed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockUploadService)
			svc.On("InitUpload", mock.Anything, mock.Anything).Return(nil, tt.err)

			req := httptest.NewRequest(http.MethodPost, "/documents/uploads", bytes.NewBufferString(`{"filename":"a.pdf"}`))
			w := httptest.NewRecorder()

			NewUploadHandler(svc).InitUpload(w, req)

			assert.Equal(t, tt.expected, w.Code)
		})
	}
}
