package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/ingest"
)

var _ ingest.Store = (*PipelineStore)(nil)

// PipelineStore backs the ingestion orchestrator with Postgres.
type PipelineStore struct {
	pool     *pgxpool.Pool
	statuses *StatusRepository
	chunks   *ChunkRepository
	now      func() time.Time
}

func NewPipelineStore(pool *pgxpool.Pool) *PipelineStore {
	return &PipelineStore{
		pool:     pool,
		statuses: NewStatusRepository(pool),
		chunks:   NewChunkRepository(pool),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *PipelineStore) AcquireRun(ctx context.Context, documentID, runID string, staleAfter time.Duration) (*domain.ProcessingStatus, error) {
	now := s.now()
	return s.statuses.Acquire(ctx, documentID, runID, now, now.Add(-staleAfter))
}

func (s *PipelineStore) UpsertStatus(ctx context.Context, status *domain.ProcessingStatus) error {
	return s.statuses.UpdateOwned(ctx, status)
}

func (s *PipelineStore) GetStatus(ctx context.Context, documentID string) (*domain.ProcessingStatus, error) {
	return s.statuses.Get(ctx, documentID)
}

// SaveChunks inserts all chunks in one transaction.
func (s *PipelineStore) SaveChunks(ctx context.Context, documentID string, chunks []domain.Chunk) ([]string, error) {
	var ids []string
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		ids, err = NewChunkRepositoryWithTx(tx).InsertBatch(ctx, documentID, chunks)
		return err
	})
	return ids, err
}

// SaveFacts inserts all facts in one transaction.
func (s *PipelineStore) SaveFacts(ctx context.Context, documentID string, facts []domain.Fact) ([]string, error) {
	var ids []string
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		ids, err = NewFactRepositoryWithTx(tx).InsertBatch(ctx, documentID, facts)
		return err
	})
	return ids, err
}

func (s *PipelineStore) SaveEmbeddings(ctx context.Context, documentID string, embeddings []domain.Embedding) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return NewEmbeddingRepositoryWithTx(tx).InsertBatch(ctx, documentID, embeddings)
	})
}

func (s *PipelineStore) CountChunks(ctx context.Context, documentID string) (int, error) {
	return s.chunks.CountByDocument(ctx, documentID)
}

// DeleteArtifacts removes embeddings, facts and chunks of a document atomically.
func (s *PipelineStore) DeleteArtifacts(ctx context.Context, documentID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := NewEmbeddingRepositoryWithTx(tx).DeleteByDocument(ctx, documentID); err != nil {
			return err
		}
		if err := NewFactRepositoryWithTx(tx).DeleteByDocument(ctx, documentID); err != nil {
			return err
		}
		return NewChunkRepositoryWithTx(tx).DeleteByDocument(ctx, documentID)
	})
}
