package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

var ErrEmbeddingNotFound = errors.New("embedding not found")

// EmbeddingRepository stores vectors for chunks and facts, keyed by owner id.
type EmbeddingRepository struct {
	db dbtx
}

func NewEmbeddingRepository(pool *pgxpool.Pool) *EmbeddingRepository {
	return &EmbeddingRepository{db: pool}
}

func NewEmbeddingRepositoryWithTx(tx pgx.Tx) *EmbeddingRepository {
	return &EmbeddingRepository{db: tx}
}

// InsertBatch stores embeddings; an existing vector for the same owner is replaced.
func (r *EmbeddingRepository) InsertBatch(ctx context.Context, documentID string, embeddings []domain.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range embeddings {
		if e.OwnerID == "" {
			return fmt.Errorf("embedding without owner id")
		}
		batch.Queue(
			`INSERT INTO embeddings (owner_id, document_id, dimensionality, embedding)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (owner_id) DO UPDATE
			 SET dimensionality = EXCLUDED.dimensionality, embedding = EXCLUDED.embedding`,
			e.OwnerID, documentID, e.Dimensionality, pgvector.NewVector(e.Vector),
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for _, e := range embeddings {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert embedding for %s: %w", e.OwnerID, err)
		}
	}
	return nil
}

func (r *EmbeddingRepository) GetByOwner(ctx context.Context, ownerID string) (*domain.Embedding, error) {
	var vec pgvector.Vector
	var e domain.Embedding
	err := r.db.QueryRow(ctx,
		`SELECT owner_id, dimensionality, embedding FROM embeddings WHERE owner_id = $1`,
		ownerID,
	).Scan(&e.OwnerID, &e.Dimensionality, &vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmbeddingNotFound
		}
		return nil, err
	}
	e.Vector = vec.Slice()
	return &e, nil
}

func (r *EmbeddingRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM embeddings WHERE document_id = $1`, documentID).Scan(&n)
	return n, err
}

func (r *EmbeddingRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM embeddings WHERE document_id = $1`, documentID)
	return err
}
