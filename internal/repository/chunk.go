package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

// ChunkRepository handles persistence of document chunks.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// InsertBatch stores chunks and returns their new ids in input order.
func (r *ChunkRepository) InsertBatch(ctx context.Context, documentID string, chunks []domain.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}

	ids := make([]string, len(chunks))
	batch := &pgx.Batch{}
	for i, c := range chunks {
		ids[i] = uuid.NewString()
		batch.Queue(
			`INSERT INTO chunks (id, document_id, sequence_index, content, token_count)
			 VALUES ($1, $2, $3, $4, $5)`,
			ids[i], documentID, c.SequenceIndex, c.Content, c.TokenCount,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for i := range chunks {
		if _, err := results.Exec(); err != nil {
			return nil, fmt.Errorf("insert chunk %d: %w", chunks[i].SequenceIndex, err)
		}
	}
	return ids, nil
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.StoredChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, sequence_index, content, token_count
		 FROM chunks WHERE document_id = $1
		 ORDER BY sequence_index ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.StoredChunk
	for rows.Next() {
		var c domain.StoredChunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.SequenceIndex, &c.Content, &c.TokenCount); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	documentID, ok := canonicalID(documentID)
	if !ok {
		return 0, nil
	}
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&n)
	return n, err
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	return err
}
