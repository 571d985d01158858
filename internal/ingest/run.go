package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/telemetry"
)

// run holds the state of a single ingestion attempt.
type run struct {
	o      *Orchestrator
	req    Request
	logger zerolog.Logger

	mu       sync.Mutex
	status   *domain.ProcessingStatus
	lost     error
	warnings []string

	text       string
	chunks     []domain.Chunk
	chunkFacts [][]string
	facts      []domain.Fact
	factIDs    []string
	chunkEmbs  []*domain.Embedding
	factEmbs   []*domain.Embedding
}

type step struct {
	stage domain.Stage
	fn    func(context.Context) error
}

func (r *run) execute(ctx context.Context) (*domain.ProcessingStatus, error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.run", telemetry.SpanAttributes{
		DocumentID: r.req.DocumentID,
		RunID:      r.status.RunID,
		Operation:  "ingest",
	})
	defer span.End()

	r.logger.Info().Bool("extract_facts", r.wantFacts()).Msg("ingestion started")

	steps := []step{
		{domain.StageUploading, r.prepare},
		{domain.StageProcessing, r.segment},
		{domain.StageFactsExtracting, r.extractFacts},
		{domain.StageFactsSaving, r.saveFacts},
		{domain.StageEmbedding, r.embed},
		{domain.StageSaving, r.save},
	}

	for _, s := range steps {
		if err := checkpoint(ctx); err != nil {
			return r.fail(ctx, span, err)
		}
		stageCtx, stageSpan := telemetry.StartSpan(ctx, "ingest."+string(s.stage), telemetry.SpanAttributes{
			DocumentID: r.req.DocumentID,
			RunID:      r.status.RunID,
			Stage:      string(s.stage),
		})
		err := s.fn(stageCtx)
		stageSpan.End()
		if err != nil {
			if cerr := checkpoint(ctx); cerr != nil && !errors.Is(err, domain.ErrStatusConflict) {
				err = cerr
			}
			return r.fail(ctx, span, err)
		}
	}
	return r.complete(ctx)
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.Wrap(domain.ErrCancelled, err)
	}
	return nil
}

func (r *run) wantFacts() bool {
	return r.req.ExtractFacts && r.o.extractor != nil
}

// advance moves the status forward and persists it. Writes stop once the
// run lost ownership of the record.
func (r *run) advance(ctx context.Context, stage domain.Stage, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lost != nil {
		return r.lost
	}
	prev := r.status.Stage
	if err := r.status.Advance(stage, progress, r.o.now()); err != nil {
		return err
	}
	if err := r.o.store.UpsertStatus(context.WithoutCancel(ctx), r.status.Clone()); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			r.lost = err
			return err
		}
		return domain.Wrap(domain.ErrPersistence, fmt.Errorf("write status: %w", err))
	}

	ev := r.logger.Debug()
	if prev != stage {
		ev = r.logger.Info()
		telemetry.AddBreadcrumb(ctx, "ingest", fmt.Sprintf("document %s entered %s", r.status.DocumentID, stage))
	}
	ev.Str("stage", string(stage)).Int("progress", r.status.Progress).Msg("status updated")
	return nil
}

func (r *run) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.mu.Lock()
	r.warnings = append(r.warnings, msg)
	r.mu.Unlock()
	r.logger.Warn().Msg(msg)
}

// fanOut runs fn for every index on the shared pool, reporting progress
// within stage as tasks finish. It returns once all tasks are done.
func (r *run) fanOut(ctx context.Context, stage domain.Stage, n int, fn func(context.Context, int) error) ([]error, error) {
	errs := make([]error, n)
	var (
		wg   sync.WaitGroup
		done atomic.Int64
	)
	rng := stage.Range()

	for i := 0; i < n; i++ {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			errs[i] = r.call(ctx, i, fn)
			finished := int(done.Add(1))
			if err := r.advance(ctx, stage, rng.At(finished, n)); err != nil {
				r.logger.Debug().Err(err).Msg("progress update failed")
			}
		}
		if err := r.o.pool.Submit(task); err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit task: %w", err)
		}
	}
	wg.Wait()

	r.mu.Lock()
	lost := r.lost
	r.mu.Unlock()
	return errs, lost
}

// call runs fn, turning a panic into an error for unit i.
func (r *run) call(ctx context.Context, i int, fn func(context.Context, int) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Int("unit", i).Msg("ingestion task panicked")
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(ctx, i)
}

func (r *run) prepare(ctx context.Context) error {
	text := r.req.Text
	if strings.TrimSpace(text) == "" && r.req.Load != nil {
		loaded, err := r.req.Load(ctx)
		if err != nil {
			return err
		}
		text = loaded
		r.logger.Debug().Int("bytes", len(text)).Msg("document text loaded")
	}
	r.text = strings.TrimSpace(text)
	if r.text == "" {
		return domain.Wrap(domain.ErrInvalidInput, errors.New("document text is empty"))
	}
	if err := r.o.store.DeleteArtifacts(ctx, r.req.DocumentID); err != nil {
		return domain.Wrap(domain.ErrPersistence, fmt.Errorf("delete previous artifacts: %w", err))
	}
	return r.advance(ctx, domain.StageUploading, domain.StageUploading.Range().End)
}

func (r *run) segment(ctx context.Context) error {
	if err := r.advance(ctx, domain.StageProcessing, domain.StageProcessing.Range().Start); err != nil {
		return err
	}
	chunks, err := r.o.segmenter.Segment(r.text)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return domain.Wrap(domain.ErrInvalidInput, errors.New("segmentation produced no chunks"))
	}
	r.chunks = chunks
	r.logger.Info().Int("chunks", len(chunks)).Msg("document segmented")
	return r.advance(ctx, domain.StageProcessing, domain.StageProcessing.Range().End)
}

func (r *run) extractFacts(ctx context.Context) error {
	if !r.wantFacts() {
		return nil
	}
	stage := domain.StageFactsExtracting
	if err := r.advance(ctx, stage, stage.Range().Start); err != nil {
		return err
	}

	n := len(r.chunks)
	r.chunkFacts = make([][]string, n)
	errs, err := r.fanOut(ctx, stage, n, func(ctx context.Context, i int) error {
		facts, err := r.o.extractor.Extract(ctx, r.chunks[i].Content)
		if err != nil {
			return err
		}
		r.chunkFacts[i] = facts
		return nil
	})
	if err != nil {
		return err
	}

	failed := 0
	var firstErr error
	for i, e := range errs {
		if e == nil {
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = e
		}
		r.logger.Warn().Err(e).Int("chunk", r.chunks[i].SequenceIndex).Msg("fact extraction failed for chunk")
	}
	if failed == 0 {
		return nil
	}

	ratio := float64(failed) / float64(n)
	switch {
	case r.o.cfg.AbortOnExtractionOutage && failed == n,
		r.o.cfg.FactFailureAbortRatio > 0 && ratio >= r.o.cfg.FactFailureAbortRatio:
		return domain.Wrap(domain.ErrExtractionFailed,
			fmt.Errorf("fact extraction failed for %d of %d chunks: %w", failed, n, firstErr))
	}
	r.warn("fact extraction failed for %d of %d chunks", failed, n)
	return nil
}

func (r *run) saveFacts(ctx context.Context) error {
	if !r.wantFacts() {
		return nil
	}
	stage := domain.StageFactsSaving
	if err := r.advance(ctx, stage, stage.Range().Start); err != nil {
		return err
	}

	for i, texts := range r.chunkFacts {
		for _, text := range texts {
			r.facts = append(r.facts, domain.Fact{Text: text, SourceChunkIndex: r.chunks[i].SequenceIndex})
		}
	}
	if len(r.facts) > 0 {
		ids, err := r.o.store.SaveFacts(ctx, r.req.DocumentID, r.facts)
		if err != nil {
			return domain.Wrap(domain.ErrPersistence, fmt.Errorf("save facts: %w", err))
		}
		if len(ids) != len(r.facts) {
			return domain.Wrap(domain.ErrPersistence, fmt.Errorf("saved %d facts, got %d ids", len(r.facts), len(ids)))
		}
		r.factIDs = ids
	}
	r.logger.Info().Int("facts", len(r.facts)).Msg("facts saved")
	return r.advance(ctx, stage, stage.Range().End)
}

func (r *run) embed(ctx context.Context) error {
	stage := domain.StageEmbedding
	if err := r.advance(ctx, stage, stage.Range().Start); err != nil {
		return err
	}

	texts := make([]string, 0, len(r.chunks)+len(r.facts))
	for _, c := range r.chunks {
		texts = append(texts, c.Content)
	}
	embedFacts := r.o.cfg.EmbedFacts && len(r.factIDs) > 0
	if embedFacts {
		for _, f := range r.facts {
			texts = append(texts, f.Text)
		}
	}

	results := make([]*domain.Embedding, len(texts))
	errs, err := r.fanOut(ctx, stage, len(texts), func(ctx context.Context, i int) error {
		emb, err := r.generate(ctx, texts[i])
		if err != nil {
			return err
		}
		results[i] = &emb
		return nil
	})
	if err != nil {
		return err
	}

	r.chunkEmbs = results[:len(r.chunks)]
	r.factEmbs = results[len(r.chunks):]

	chunkFailures, factFailures := 0, 0
	var firstErr error
	for i, e := range errs {
		if e == nil {
			continue
		}
		if firstErr == nil {
			firstErr = e
		}
		if i < len(r.chunks) {
			chunkFailures++
		} else {
			factFailures++
		}
	}

	if chunkFailures == len(r.chunks) {
		return domain.Wrap(domain.ErrEmbeddingFailed,
			fmt.Errorf("no chunk could be embedded (%d chunks): %w", len(r.chunks), firstErr))
	}
	if chunkFailures > 0 {
		r.warn("embedding failed for %d of %d chunks", chunkFailures, len(r.chunks))
	}
	if factFailures > 0 {
		r.warn("embedding failed for %d of %d facts", factFailures, len(r.facts))
	}
	return nil
}

// generate embeds text, retrying transient failures with exponential backoff.
func (r *run) generate(ctx context.Context, text string) (domain.Embedding, error) {
	var emb domain.Embedding
	op := func() error {
		e, err := r.o.generator.Generate(ctx, text)
		if err != nil {
			if !domain.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		emb = e
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.o.cfg.RetryInitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.o.cfg.EmbedRetries)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		r.logger.Debug().Err(err).Dur("wait", wait).Msg("retrying embedding")
	})
	return emb, err
}

func (r *run) save(ctx context.Context) error {
	stage := domain.StageSaving
	if err := r.advance(ctx, stage, stage.Range().Start); err != nil {
		return err
	}

	chunks := make([]domain.Chunk, 0, len(r.chunks))
	vectors := make([]domain.Embedding, 0, len(r.chunks)+len(r.factEmbs))
	for i, emb := range r.chunkEmbs {
		if emb == nil {
			continue
		}
		chunks = append(chunks, r.chunks[i])
		vectors = append(vectors, *emb)
	}

	ids, err := r.o.store.SaveChunks(ctx, r.req.DocumentID, chunks)
	if err != nil {
		return domain.Wrap(domain.ErrPersistence, fmt.Errorf("save chunks: %w", err))
	}
	if len(ids) != len(chunks) {
		return domain.Wrap(domain.ErrPersistence, fmt.Errorf("saved %d chunks, got %d ids", len(chunks), len(ids)))
	}
	for i := range ids {
		vectors[i].OwnerID = ids[i]
	}
	for i, emb := range r.factEmbs {
		if emb == nil {
			continue
		}
		e := *emb
		e.OwnerID = r.factIDs[i]
		vectors = append(vectors, e)
	}

	if err := r.o.store.SaveEmbeddings(ctx, r.req.DocumentID, vectors); err != nil {
		return domain.Wrap(domain.ErrPersistence, fmt.Errorf("save embeddings: %w", err))
	}

	stored, err := r.o.store.CountChunks(ctx, r.req.DocumentID)
	if err != nil {
		return domain.Wrap(domain.ErrPersistence, fmt.Errorf("count chunks: %w", err))
	}
	if stored != len(ids) {
		return domain.Wrap(domain.ErrPersistence, fmt.Errorf("store holds %d chunks, saved %d", stored, len(ids)))
	}

	r.mu.Lock()
	r.status.ChunkCount = stored
	r.mu.Unlock()
	return r.advance(ctx, stage, 95)
}

func (r *run) complete(ctx context.Context) (*domain.ProcessingStatus, error) {
	r.mu.Lock()
	r.status.Error = strings.Join(r.warnings, "; ")
	r.mu.Unlock()

	if err := r.advance(ctx, domain.StageCompleted, 100); err != nil {
		r.logger.Error().Err(err).Msg("failed to record completion")
		return r.snapshot(), err
	}
	status := r.snapshot()
	r.logger.Info().
		Int("chunk_count", status.ChunkCount).
		Int("facts", len(r.factIDs)).
		Str("warnings", status.Error).
		Msg("ingestion completed")
	return status, nil
}

// fail records a failed status and returns it with cause. A run that lost
// ownership of its record writes nothing.
func (r *run) fail(ctx context.Context, span *telemetry.Span, cause error) (*domain.ProcessingStatus, error) {
	span.SetError(cause)

	if errors.Is(cause, domain.ErrStatusConflict) {
		r.logger.Warn().Err(cause).Msg("run lost ownership of status, stopping")
		return r.snapshot(), cause
	}

	r.mu.Lock()
	r.status.Fail(failureMessage(cause, r.warnings), r.o.now())
	status := r.status.Clone()
	err := r.o.store.UpsertStatus(context.WithoutCancel(ctx), status)
	r.mu.Unlock()

	if err != nil {
		r.logger.Error().Err(err).Msg("failed to record failure")
	}
	r.logger.Error().Err(cause).Int("progress", status.Progress).Msg("ingestion failed")
	if !errors.Is(cause, domain.ErrCancelled) {
		telemetry.CaptureError(ctx, cause)
	}
	return status, cause
}

func (r *run) snapshot() *domain.ProcessingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.Clone()
}

// failureMessage renders a cause for ProcessingStatus.Error.
func failureMessage(cause error, warnings []string) string {
	var msg string
	var de *domain.DomainError
	switch {
	case errors.Is(cause, domain.ErrCancelled):
		msg = domain.ErrCancelled.Message
	case errors.As(cause, &de) && de.Err != nil:
		msg = de.Message + ": " + de.Err.Error()
	case errors.As(cause, &de):
		msg = de.Message
	default:
		msg = cause.Error()
	}
	if len(warnings) > 0 {
		msg += " (" + strings.Join(warnings, "; ") + ")"
	}
	return msg
}
