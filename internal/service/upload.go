package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/telemetry"
)

const defaultUploadFilename = "document.txt"

// UploadURLGenerator presigns direct uploads to blob storage.
type UploadURLGenerator interface {
	GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error)
}

// UploadService hands out source keys and presigned URLs for documents that
// are too large to submit inline.
type UploadService struct {
	storage UploadURLGenerator
	uuidGen UUIDGenerator
	expiry  time.Duration
	now     func() time.Time
}

func NewUploadService(storage UploadURLGenerator, expiry time.Duration) *UploadService {
	return NewUploadServiceWithUUIDGen(storage, expiry, &DefaultUUIDGenerator{})
}

func NewUploadServiceWithUUIDGen(storage UploadURLGenerator, expiry time.Duration, uuidGen UUIDGenerator) *UploadService {
	return &UploadService{
		storage: storage,
		uuidGen: uuidGen,
		expiry:  expiry,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type InitUploadInput struct {
	Filename    string
	ContentType string
}

type InitUploadResult struct {
	SourceKey string
	UploadURL string
	ExpiresAt time.Time
}

// InitUpload reserves a source key under uploads/ and presigns a PUT for it.
// The returned key is passed as source_key when the document is submitted.
func (s *UploadService) InitUpload(ctx context.Context, input InitUploadInput) (*InitUploadResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "UploadService.InitUpload", telemetry.SpanAttributes{
		Operation: "init_upload",
	})
	defer span.End()

	contentType := strings.TrimSpace(input.ContentType)
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	if !isTextContentType(contentType) {
		return nil, domain.Wrap(domain.ErrInvalidInput, fmt.Errorf("unsupported content type %q", contentType))
	}

	key := buildSourceKey(s.uuidGen.NewString(), input.Filename)
	url, err := s.storage.GenerateUploadURL(ctx, key, contentType)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to generate upload URL: %w", err)
	}

	return &InitUploadResult{
		SourceKey: key,
		UploadURL: url,
		ExpiresAt: s.now().Add(s.expiry),
	}, nil
}

func buildSourceKey(id, filename string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = defaultUploadFilename
	}
	return fmt.Sprintf("uploads/%s/%s", id, name)
}

func isTextContentType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/json", mediaType == "application/xml":
		return true
	}
	return false
}
