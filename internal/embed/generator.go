package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

// Provider produces a vector for a piece of text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces embeddings from a single model. When no dimensionality
// is configured, the first successful response fixes it.
type Generator struct {
	provider Provider
	model    string
	limiter  *rate.Limiter
	logger   zerolog.Logger

	mu         sync.RWMutex
	dimensions int
}

// Option configures a Generator.
type Option func(*Generator)

// WithModel records the model identity the provider is bound to.
func WithModel(model string) Option {
	return func(g *Generator) {
		g.model = model
	}
}

// WithDimensions fixes the expected vector size.
func WithDimensions(n int) Option {
	return func(g *Generator) {
		g.dimensions = n
	}
}

// WithLimiter throttles provider calls with a shared token bucket.
func WithLimiter(l *rate.Limiter) Option {
	return func(g *Generator) {
		g.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}

// NewGenerator creates a Generator backed by provider.
func NewGenerator(provider Provider, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With().Str("component", "embedding-generator").Str("model", g.model).Logger()
	return g
}

// Model returns the model identity.
func (g *Generator) Model() string {
	return g.model
}

// Dimensions returns the vector size, or 0 before the first response when
// none was configured.
func (g *Generator) Dimensions() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dimensions
}

// Generate embeds text. The returned Embedding has no owner yet.
func (g *Generator) Generate(ctx context.Context, text string) (domain.Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Embedding{}, domain.Wrap(domain.ErrInvalidInput, fmt.Errorf("embedding text is empty"))
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return domain.Embedding{}, domain.Wrap(domain.ErrEmbeddingFailed, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	vector, err := g.provider.Embed(ctx, text)
	if err != nil {
		return domain.Embedding{}, domain.Wrap(domain.ErrEmbeddingFailed, err)
	}
	if len(vector) == 0 {
		return domain.Embedding{}, domain.Wrap(domain.ErrEmbeddingFailed, fmt.Errorf("provider returned an empty vector"))
	}

	if err := g.checkDimensions(len(vector)); err != nil {
		return domain.Embedding{}, err
	}
	return domain.NewEmbedding("", vector), nil
}

func (g *Generator) checkDimensions(n int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dimensions == 0 {
		g.dimensions = n
		g.logger.Debug().Int("dimensions", n).Msg("embedding dimensionality locked")
		return nil
	}
	if g.dimensions != n {
		return domain.Wrap(domain.ErrEmbeddingFailed,
			fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, g.dimensions, n))
	}
	return nil
}
