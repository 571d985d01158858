package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

// FactRepository handles persistence of extracted facts.
type FactRepository struct {
	db dbtx
}

func NewFactRepository(pool *pgxpool.Pool) *FactRepository {
	return &FactRepository{db: pool}
}

func NewFactRepositoryWithTx(tx pgx.Tx) *FactRepository {
	return &FactRepository{db: tx}
}

// InsertBatch stores facts and returns their new ids in input order.
func (r *FactRepository) InsertBatch(ctx context.Context, documentID string, facts []domain.Fact) ([]string, error) {
	if len(facts) == 0 {
		return []string{}, nil
	}

	ids := make([]string, len(facts))
	batch := &pgx.Batch{}
	for i, f := range facts {
		ids[i] = uuid.NewString()
		batch.Queue(
			`INSERT INTO facts (id, document_id, source_chunk_index, text)
			 VALUES ($1, $2, $3, $4)`,
			ids[i], documentID, f.SourceChunkIndex, f.Text,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for i := range facts {
		if _, err := results.Exec(); err != nil {
			return nil, fmt.Errorf("insert fact %d: %w", i, err)
		}
	}
	return ids, nil
}

func (r *FactRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.StoredFact, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, source_chunk_index, text
		 FROM facts WHERE document_id = $1
		 ORDER BY source_chunk_index ASC, created_at ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []domain.StoredFact
	for rows.Next() {
		var f domain.StoredFact
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.SourceChunkIndex, &f.Text); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (r *FactRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM facts WHERE document_id = $1`, documentID)
	return err
}
