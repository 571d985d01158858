package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/telemetry"
)

const (
	// MaxRetries is the maximum number of attempts for a failed job
	MaxRetries = 3
	// DefaultBatchSize is the number of jobs claimed per poll.
	DefaultBatchSize = 4
)

// IngestionJobRepository defines the interface for ingestion job persistence
type IngestionJobRepository interface {
	ClaimPending(ctx context.Context, limit int) ([]*domain.IngestionJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.IngestionJobStatus, errMsg string) error
	IncrementRetries(ctx context.Context, id string) error
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// DocumentProcessor runs the pipeline for one document.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, documentID string) (*domain.ProcessingStatus, error)
}

// IngestionWorkerConfig holds IngestionWorker settings.
type IngestionWorkerConfig struct {
	BatchSize  int
	MaxRetries int32
	// StaleAfter requeues processing jobs whose status stopped moving. Zero disables it.
	StaleAfter time.Duration
}

// IngestionWorker claims queued ingestion jobs and processes a batch concurrently.
type IngestionWorker struct {
	repo      IngestionJobRepository
	processor DocumentProcessor
	cfg       IngestionWorkerConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// NewIngestionWorker creates a new IngestionWorker instance
func NewIngestionWorker(repo IngestionJobRepository, processor DocumentProcessor, cfg IngestionWorkerConfig, logger zerolog.Logger) *IngestionWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = MaxRetries
	}
	return &IngestionWorker{
		repo:      repo,
		processor: processor,
		cfg:       cfg,
		logger:    logger.With().Str("component", "ingestion-worker").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *IngestionWorker) ProcessJobs(ctx context.Context) error {
	if w.cfg.StaleAfter > 0 {
		n, err := w.repo.RequeueStale(ctx, w.now().Add(-w.cfg.StaleAfter))
		if err != nil {
			w.logger.Warn().Err(err).Msg("failed to requeue stale jobs")
		} else if n > 0 {
			w.logger.Info().Int64("jobs", n).Msg("requeued stale jobs")
		}
	}

	jobs, err := w.repo.ClaimPending(ctx, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	w.logger.Info().Int("jobs", len(jobs)).Msg("processing pending ingestion jobs")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.BatchSize)
	for _, job := range jobs {
		g.Go(func() error {
			if err := w.processJob(gctx, job); err != nil {
				w.logger.Error().Err(err).Str("job_id", job.ID).Msg("error processing job")
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *IngestionWorker) processJob(ctx context.Context, job *domain.IngestionJob) error {
	logger := w.logger.With().Str("job_id", job.ID).Str("document_id", job.DocumentID).Logger()
	logger.Debug().Int32("retries", job.Retries).Msg("processing job")

	ctx, span := telemetry.StartTransaction(ctx, "IngestionWorker.processJob", "queue.process")
	defer span.End()

	status, err := w.processor.ProcessDocument(ctx, job.DocumentID)
	switch {
	case err == nil:
		logger.Info().Int("chunks", status.ChunkCount).Msg("job completed")
		return w.complete(ctx, job, "")
	case errors.Is(err, domain.ErrAlreadyRunning):
		logger.Info().Msg("document already being ingested, skipping job")
		return w.complete(ctx, job, "skipped: ingestion already running")
	case errors.Is(err, domain.ErrStatusConflict):
		logger.Info().Msg("run superseded by another run, skipping job")
		return w.complete(ctx, job, "skipped: superseded by another run")
	case !domain.IsRetryable(err):
		logger.Warn().Err(err).Msg("job failed permanently")
		return w.fail(ctx, job, jobError(status, err))
	}
	return w.handleJobFailure(ctx, job, status, err)
}

func (w *IngestionWorker) complete(ctx context.Context, job *domain.IngestionJob, note string) error {
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IngestionJobStatusCompleted, note); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}
	return nil
}

func (w *IngestionWorker) fail(ctx context.Context, job *domain.IngestionJob, msg string) error {
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IngestionJobStatusFailed, msg); err != nil {
		return fmt.Errorf("failed to update job status to failed: %w", err)
	}
	return nil
}

// handleJobFailure handles a failed job with retry logic
func (w *IngestionWorker) handleJobFailure(ctx context.Context, job *domain.IngestionJob, status *domain.ProcessingStatus, jobErr error) error {
	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	attempt := job.Retries + 1
	if attempt >= w.cfg.MaxRetries {
		w.logger.Warn().Str("job_id", job.ID).Int32("max_retries", w.cfg.MaxRetries).Msg("job exceeded max retries, marking as failed")
		telemetry.CaptureMessage(ctx, fmt.Sprintf("ingestion job %s for document %s exceeded max retries", job.ID, job.DocumentID))
		return w.fail(ctx, job, fmt.Sprintf("max retries exceeded: %s", jobError(status, jobErr)))
	}

	w.logger.Info().Str("job_id", job.ID).Int32("attempt", attempt).Int32("max_retries", w.cfg.MaxRetries).Msg("job will be retried")
	msg := fmt.Sprintf("retry %d: %s", attempt, jobError(status, jobErr))
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IngestionJobStatusPending, msg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}
	return nil
}

// jobError prefers the message recorded on the status, which carries soft
// failure details.
func jobError(status *domain.ProcessingStatus, err error) string {
	if status != nil && status.Error != "" {
		return status.Error
	}
	return err.Error()
}
