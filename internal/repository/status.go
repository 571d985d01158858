package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

const statusColumns = `document_id, stage, progress, error, chunk_count, run_id, updated_at`

// StatusRepository persists one processing status row per document. Rows
// owned by a run are only written through that run's id.
type StatusRepository struct {
	db dbtx
}

func NewStatusRepository(pool *pgxpool.Pool) *StatusRepository {
	return &StatusRepository{db: pool}
}

func NewStatusRepositoryWithTx(tx pgx.Tx) *StatusRepository {
	return &StatusRepository{db: tx}
}

func (r *StatusRepository) Create(ctx context.Context, s *domain.ProcessingStatus) error {
	if err := domain.ValidateProcessingStatus(s); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO processing_status (`+statusColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.DocumentID, s.Stage, s.Progress, nullableString(s.Error), s.ChunkCount, nullableString(s.RunID), s.UpdatedAt,
	)
	return err
}

func (r *StatusRepository) Get(ctx context.Context, documentID string) (*domain.ProcessingStatus, error) {
	documentID, ok := canonicalID(documentID)
	if !ok {
		return nil, domain.ErrStatusNotFound
	}
	s, err := scanStatus(r.db.QueryRow(ctx,
		`SELECT `+statusColumns+` FROM processing_status WHERE document_id = $1`,
		documentID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStatusNotFound
		}
		return nil, err
	}
	return s, nil
}

// Acquire claims the row for runID and resets it to uploading/0. It only
// takes over rows without a run, terminal rows, or rows not written since
// staleBefore; otherwise it returns the current row and domain.ErrAlreadyRunning.
func (r *StatusRepository) Acquire(ctx context.Context, documentID, runID string, now, staleBefore time.Time) (*domain.ProcessingStatus, error) {
	s, err := scanStatus(r.db.QueryRow(ctx,
		`INSERT INTO processing_status (`+statusColumns+`)
		 VALUES ($1, $2, 0, NULL, 0, $3, $4)
		 ON CONFLICT (document_id) DO UPDATE
		 SET stage = EXCLUDED.stage,
		     progress = 0,
		     error = NULL,
		     chunk_count = 0,
		     run_id = EXCLUDED.run_id,
		     updated_at = EXCLUDED.updated_at
		 WHERE processing_status.run_id IS NULL
		    OR processing_status.stage IN ($5, $6)
		    OR processing_status.updated_at < $7
		 RETURNING `+statusColumns,
		documentID, domain.StageUploading, runID, now,
		domain.StageCompleted, domain.StageFailed, staleBefore,
	))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	current, err := r.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return current, domain.ErrAlreadyRunning
}

// UpdateOwned writes s only while the row still belongs to s.RunID.
func (r *StatusRepository) UpdateOwned(ctx context.Context, s *domain.ProcessingStatus) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE processing_status
		 SET stage = $1, progress = $2, error = $3, chunk_count = $4, updated_at = $5
		 WHERE document_id = $6 AND run_id = $7`,
		s.Stage, s.Progress, nullableString(s.Error), s.ChunkCount, s.UpdatedAt, s.DocumentID, s.RunID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrStatusConflict
	}
	return nil
}

// ResetForRetry puts a finished (or abandoned) status back to uploading/0
// without an owning run. A status that is still being worked on yields
// domain.ErrAlreadyRunning.
func (r *StatusRepository) ResetForRetry(ctx context.Context, documentID string, now, staleBefore time.Time) (*domain.ProcessingStatus, error) {
	s, err := scanStatus(r.db.QueryRow(ctx,
		`INSERT INTO processing_status (`+statusColumns+`)
		 VALUES ($1, $2, 0, NULL, 0, NULL, $3)
		 ON CONFLICT (document_id) DO UPDATE
		 SET stage = EXCLUDED.stage,
		     progress = 0,
		     error = NULL,
		     chunk_count = 0,
		     run_id = NULL,
		     updated_at = EXCLUDED.updated_at
		 WHERE processing_status.stage IN ($4, $5, $6)
		    OR processing_status.updated_at < $7
		 RETURNING `+statusColumns,
		documentID, domain.StageUploading, now,
		domain.StageCompleted, domain.StageFailed, domain.StageUnknown, staleBefore,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAlreadyRunning
		}
		return nil, err
	}
	return s, nil
}

func scanStatus(row pgx.Row) (*domain.ProcessingStatus, error) {
	var s domain.ProcessingStatus
	var errMsg, runID pgtype.Text
	if err := row.Scan(&s.DocumentID, &s.Stage, &s.Progress, &errMsg, &s.ChunkCount, &runID, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if errMsg.Valid {
		s.Error = errMsg.String
	}
	if runID.Valid {
		s.RunID = runID.String
	}
	if err := domain.ValidateProcessingStatus(&s); err != nil {
		return nil, fmt.Errorf("corrupt status row: %w", err)
	}
	return &s, nil
}
