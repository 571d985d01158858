package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

// MockChunkCounter is a mock implementation of ChunkCounter
type MockChunkCounter struct {
	mock.Mock
}

func (m *MockChunkCounter) CountByDocument(ctx context.Context, documentID string) (int, error) {
	args := m.Called(ctx, documentID)
	return args.Int(0), args.Error(1)
}

func TestStatusService_GetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the stored record", func(t *testing.T) {
		statuses := new(MockStatusRepository)
		chunks := new(MockChunkCounter)
		docs := new(MockDocumentRepository)
		stored := &domain.ProcessingStatus{DocumentID: "doc-1", Stage: domain.StageEmbedding, Progress: 70}
		statuses.On("Get", mock.Anything, "doc-1").Return(stored, nil)

		status, err := NewStatusService(statuses, chunks, docs).GetStatus(ctx, "doc-1")

		require.NoError(t, err)
		assert.Same(t, stored, status)
		chunks.AssertNotCalled(t, "CountByDocument", mock.Anything, mock.Anything)
	})

	t.Run("derives completed from persisted chunks", func(t *testing.T) {
		statuses := new(MockStatusRepository)
		chunks := new(MockChunkCounter)
		docs := new(MockDocumentRepository)
		statuses.On("Get", mock.Anything, "doc-1").Return(nil, domain.ErrStatusNotFound)
		chunks.On("CountByDocument", mock.Anything, "doc-1").Return(4, nil)

		status, err := NewStatusService(statuses, chunks, docs).GetStatus(ctx, "doc-1")

		require.NoError(t, err)
		assert.Equal(t, domain.StageCompleted, status.Stage)
		assert.Equal(t, 100, status.Progress)
		assert.Equal(t, 4, status.ChunkCount)
	})

	t.Run("reports processing for an accepted document without record", func(t *testing.T) {
		statuses := new(MockStatusRepository)
		chunks := new(MockChunkCounter)
		docs := new(MockDocumentRepository)
		statuses.On("Get", mock.Anything, "doc-1").Return(nil, domain.ErrStatusNotFound)
		chunks.On("CountByDocument", mock.Anything, "doc-1").Return(0, nil)
		docs.On("Exists", mock.Anything, "doc-1").Return(true, nil)

		status, err := NewStatusService(statuses, chunks, docs).GetStatus(ctx, "doc-1")

		require.NoError(t, err)
		assert.Equal(t, domain.StageProcessing, status.Stage)
		assert.Equal(t, 10, status.Progress)
	})

	t.Run("reports unknown rather than failing", func(t *testing.T) {
		statuses := new(MockStatusRepository)
		chunks := new(MockChunkCounter)
		docs := new(MockDocumentRepository)
		statuses.On("Get", mock.Anything, "ghost").Return(nil, domain.ErrStatusNotFound)
		chunks.On("CountByDocument", mock.Anything, "ghost").Return(0, nil)
		docs.On("Exists", mock.Anything, "ghost").Return(false, nil)

		status, err := NewStatusService(statuses, chunks, docs).GetStatus(ctx, "ghost")

		require.NoError(t, err)
		assert.Equal(t, domain.StageUnknown, status.Stage)
		assert.Equal(t, 0, status.Progress)
		assert.Equal(t, "ghost", status.DocumentID)
	})

	t.Run("propagates storage errors", func(t *testing.T) {
		statuses := new(MockStatusRepository)
		statuses.On("Get", mock.Anything, "doc-1").Return(nil, errors.New("connection reset"))

		_, err := NewStatusService(statuses, new(MockChunkCounter), new(MockDocumentRepository)).GetStatus(ctx, "doc-1")

		assert.EqualError(t, err, "connection reset")
	})
}
