package ingest

import (
	"fmt"
	"time"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

// Config controls how a run treats unit failures and how much work runs in parallel.
type Config struct {
	// EmbedFacts embeds extracted facts alongside chunks.
	EmbedFacts bool
	// FactFailureAbortRatio fails the run once this share of chunks failed
	// fact extraction. Zero disables the check.
	FactFailureAbortRatio float64
	// AbortOnExtractionOutage fails the run when fact extraction failed for
	// every chunk. Off by default, so such runs complete with a warning.
	AbortOnExtractionOutage bool
	// Concurrency bounds provider calls in flight across all runs.
	Concurrency int
	// EmbedRetries is the number of extra attempts per embedding unit.
	EmbedRetries         int
	RetryInitialInterval time.Duration
	// StaleRunAfter lets a new run take over a record whose run stopped
	// writing, e.g. after a crash.
	StaleRunAfter time.Duration
}

// DefaultConfig provides sane defaults for ingestion.
func DefaultConfig() Config {
	return Config{
		EmbedFacts:              true,
		FactFailureAbortRatio:   0,
		AbortOnExtractionOutage: false,
		Concurrency:             4,
		EmbedRetries:            1,
		RetryInitialInterval:    250 * time.Millisecond,
		StaleRunAfter:           30 * time.Minute,
	}
}

// Validate reports a configuration error for unusable parameters.
func (c Config) Validate() error {
	switch {
	case c.FactFailureAbortRatio < 0 || c.FactFailureAbortRatio > 1:
		return configError("fact failure abort ratio must be within [0,1], got %v", c.FactFailureAbortRatio)
	case c.Concurrency < 1:
		return configError("concurrency must be at least 1, got %d", c.Concurrency)
	case c.EmbedRetries < 0:
		return configError("embed retries cannot be negative, got %d", c.EmbedRetries)
	case c.RetryInitialInterval < 0:
		return configError("retry interval cannot be negative, got %s", c.RetryInitialInterval)
	case c.StaleRunAfter <= 0:
		return configError("stale run timeout must be positive, got %s", c.StaleRunAfter)
	}
	return nil
}

func configError(format string, args ...any) error {
	return domain.Wrap(domain.ErrConfiguration, fmt.Errorf(format, args...))
}
