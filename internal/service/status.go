package service

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/telemetry"
)

// StatusReader reads processing status records.
type StatusReader interface {
	Get(ctx context.Context, documentID string) (*domain.ProcessingStatus, error)
}

// ChunkCounter counts persisted chunks for a document.
type ChunkCounter interface {
	CountByDocument(ctx context.Context, documentID string) (int, error)
}

// DocumentChecker reports whether a document has been accepted.
type DocumentChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// StatusService answers status probes.
type StatusService struct {
	statuses StatusReader
	chunks   ChunkCounter
	docs     DocumentChecker
	now      func() time.Time
}

func NewStatusService(statuses StatusReader, chunks ChunkCounter, docs DocumentChecker) *StatusService {
	return &StatusService{
		statuses: statuses,
		chunks:   chunks,
		docs:     docs,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetStatus returns the processing status of a document. It never fails for
// an unknown document: when no record exists the answer is derived from
// persisted chunks, then from the document row, and finally reports unknown.
func (s *StatusService) GetStatus(ctx context.Context, documentID string) (*domain.ProcessingStatus, error) {
	ctx, span := telemetry.StartSpan(ctx, "StatusService.GetStatus", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "status",
	})
	defer span.End()

	status, err := s.statuses.Get(ctx, documentID)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, domain.ErrStatusNotFound) {
		span.SetError(err)
		return nil, err
	}

	now := s.now()
	count, err := s.chunks.CountByDocument(ctx, documentID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if count > 0 {
		return &domain.ProcessingStatus{
			DocumentID: documentID,
			Stage:      domain.StageCompleted,
			Progress:   100,
			ChunkCount: count,
			UpdatedAt:  now,
		}, nil
	}

	exists, err := s.docs.Exists(ctx, documentID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if exists {
		return &domain.ProcessingStatus{
			DocumentID: documentID,
			Stage:      domain.StageProcessing,
			Progress:   domain.StageProcessing.Range().Start,
			UpdatedAt:  now,
		}, nil
	}

	return &domain.ProcessingStatus{
		DocumentID: documentID,
		Stage:      domain.StageUnknown,
		Progress:   0,
		UpdatedAt:  now,
	}, nil
}
