package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/ingest"
	"github.com/cloo-solutions/docpipe/internal/storage"
)

// MockTextSource is a mock implementation of TextSource
type MockTextSource struct {
	mock.Mock
}

func (m *MockTextSource) GetObjectText(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

// recordingIngester captures the request and resolves Load like the pipeline does.
type recordingIngester struct {
	req    ingest.Request
	loaded string
	err    error
}

func (r *recordingIngester) Run(ctx context.Context, req ingest.Request) (*domain.ProcessingStatus, error) {
	r.req = req
	if req.Text == "" && req.Load != nil {
		text, err := req.Load(ctx)
		if err != nil {
			r.err = err
			return &domain.ProcessingStatus{DocumentID: req.DocumentID, Stage: domain.StageFailed}, err
		}
		r.loaded = text
	}
	return &domain.ProcessingStatus{DocumentID: req.DocumentID, Stage: domain.StageCompleted, Progress: 100}, nil
}

func TestIngestionService_ProcessDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("passes inline content", func(t *testing.T) {
		docs := new(MockDocumentRepository)
		ing := &recordingIngester{}
		docs.On("GetByID", mock.Anything, "doc-1").Return(&domain.Document{
			ID: "doc-1", Content: "inline text", ExtractFacts: true,
		}, nil)

		status, err := NewIngestionService(docs, nil, ing, zerolog.Nop()).ProcessDocument(ctx, "doc-1")

		require.NoError(t, err)
		assert.Equal(t, domain.StageCompleted, status.Stage)
		assert.Equal(t, "inline text", ing.req.Text)
		assert.True(t, ing.req.ExtractFacts)
	})

	t.Run("loads text from blob storage", func(t *testing.T) {
		docs := new(MockDocumentRepository)
		source := new(MockTextSource)
		ing := &recordingIngester{}
		docs.On("GetByID", mock.Anything, "doc-1").Return(&domain.Document{ID: "doc-1", SourceKey: "k/doc.md"}, nil)
		source.On("GetObjectText", mock.Anything, "k/doc.md").Return("from bucket", nil)

		_, err := NewIngestionService(docs, source, ing, zerolog.Nop()).ProcessDocument(ctx, "doc-1")

		require.NoError(t, err)
		assert.Equal(t, "from bucket", ing.loaded)
		source.AssertExpectations(t)
	})

	t.Run("missing object is not retryable", func(t *testing.T) {
		docs := new(MockDocumentRepository)
		source := new(MockTextSource)
		docs.On("GetByID", mock.Anything, "doc-1").Return(&domain.Document{ID: "doc-1", SourceKey: "k/doc.md"}, nil)
		source.On("GetObjectText", mock.Anything, "k/doc.md").Return("", storage.ErrObjectNotFound)

		_, err := NewIngestionService(docs, source, &recordingIngester{}, zerolog.Nop()).ProcessDocument(ctx, "doc-1")

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)
		assert.False(t, domain.IsRetryable(err))
	})

	t.Run("transient storage errors stay retryable", func(t *testing.T) {
		docs := new(MockDocumentRepository)
		source := new(MockTextSource)
		docs.On("GetByID", mock.Anything, "doc-1").Return(&domain.Document{ID: "doc-1", SourceKey: "k/doc.md"}, nil)
		source.On("GetObjectText", mock.Anything, "k/doc.md").Return("", errors.New("timeout"))

		_, err := NewIngestionService(docs, source, &recordingIngester{}, zerolog.Nop()).ProcessDocument(ctx, "doc-1")

		require.Error(t, err)
		assert.True(t, domain.IsRetryable(err))
	})

	t.Run("source key without storage is a configuration error", func(t *testing.T) {
		docs := new(MockDocumentRepository)
		docs.On("GetByID", mock.Anything, "doc-1").Return(&domain.Document{ID: "doc-1", SourceKey: "k/doc.md"}, nil)

		_, err := NewIngestionService(docs, nil, &recordingIngester{}, zerolog.Nop()).ProcessDocument(ctx, "doc-1")

		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("unknown document", func(t *testing.T) {
		docs := new(MockDocumentRepository)
		ing := &recordingIngester{}
		docs.On("GetByID", mock.Anything, "doc-1").Return(nil, domain.ErrDocumentNotFound)

		status, err := NewIngestionService(docs, nil, ing, zerolog.Nop()).ProcessDocument(ctx, "doc-1")

		assert.Nil(t, status)
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
		assert.Empty(t, ing.req.DocumentID)
	})
}
