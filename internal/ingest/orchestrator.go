// Package ingest drives a document through segmentation, fact extraction,
// embedding and persistence while keeping its processing status current.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

var (
	ErrStoreRequired     = errors.New("ingest: store is required")
	ErrSegmenterRequired = errors.New("ingest: segmenter is required")
	ErrGeneratorRequired = errors.New("ingest: embedding generator is required")
)

// Request describes one ingestion run.
type Request struct {
	DocumentID   string
	Text         string
	ExtractFacts bool
	// Load fetches the text when Text is empty. It runs inside the
	// uploading stage, so its failure is recorded on the status.
	Load func(ctx context.Context) (string, error)
}

// Orchestrator runs ingestion requests. It is safe for concurrent use; at
// most one run per document is active at a time.
type Orchestrator struct {
	store     Store
	segmenter Segmenter
	extractor FactExtractor
	generator EmbeddingGenerator
	cfg       Config
	pool      *ants.Pool
	logger    zerolog.Logger
	now       func() time.Time
	newRunID  func() string

	active sync.Map // document id -> context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithFactExtractor enables fact extraction for requests that ask for it.
func WithFactExtractor(e FactExtractor) Option {
	return func(o *Orchestrator) {
		o.extractor = e
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an Orchestrator with a worker pool sized by cfg.Concurrency.
func NewOrchestrator(store Store, segmenter Segmenter, generator EmbeddingGenerator, cfg Config, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if segmenter == nil {
		return nil, ErrSegmenterRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	o := &Orchestrator{
		store:     store,
		segmenter: segmenter,
		generator: generator,
		cfg:       cfg,
		pool:      pool,
		logger:    zerolog.Nop(),
		now:       func() time.Time { return time.Now().UTC() },
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With().Str("component", "orchestrator").Logger()
	return o, nil
}

// Release frees the worker pool. Runs must not be started afterwards.
func (o *Orchestrator) Release() {
	o.pool.Release()
}

// Run ingests one document and returns its final status. A failed run
// returns the failed status together with the cause. If the document is
// already being ingested, Run returns the current status and
// domain.ErrAlreadyRunning without starting anything.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*domain.ProcessingStatus, error) {
	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, domain.Wrap(domain.ErrInvalidInput, errors.New("document id is required"))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, loaded := o.active.LoadOrStore(req.DocumentID, cancel); loaded {
		return o.currentStatus(ctx, req.DocumentID), domain.ErrAlreadyRunning
	}
	defer o.active.Delete(req.DocumentID)

	runID := o.newRunID()
	status, err := o.store.AcquireRun(ctx, req.DocumentID, runID, o.cfg.StaleRunAfter)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			o.logger.Info().Str("document_id", req.DocumentID).Msg("ingestion already running elsewhere")
			return status, err
		}
		return nil, domain.Wrap(domain.ErrPersistence, fmt.Errorf("acquire run: %w", err))
	}

	r := &run{
		o:      o,
		req:    req,
		status: status,
		logger: o.logger.With().
			Str("document_id", req.DocumentID).
			Str("run_id", runID).
			Logger(),
	}
	return r.execute(runCtx)
}

// Cancel stops the in-process run for documentID, if any. The run ends in
// failed at its next stage boundary.
func (o *Orchestrator) Cancel(documentID string) bool {
	v, ok := o.active.Load(documentID)
	if !ok {
		return false
	}
	v.(context.CancelFunc)()
	return true
}

// IsRunning reports whether this process is ingesting documentID.
func (o *Orchestrator) IsRunning(documentID string) bool {
	_, ok := o.active.Load(documentID)
	return ok
}

func (o *Orchestrator) currentStatus(ctx context.Context, documentID string) *domain.ProcessingStatus {
	status, err := o.store.GetStatus(ctx, documentID)
	if err != nil {
		o.logger.Debug().Err(err).Str("document_id", documentID).Msg("status lookup for running document failed")
		return nil
	}
	return status
}
