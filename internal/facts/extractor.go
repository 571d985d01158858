package facts

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

// SystemInstruction is sent with every extraction request.
const SystemInstruction = `You extract facts from documents.
List every discrete, self-contained factual statement in the text you are given.
Each fact must be understandable without the surrounding text: resolve pronouns and keep names, numbers, dates and units.
Write one fact per line and start each line with "- ".
Do not add a preamble, headings, commentary or facts that are not stated in the text.
If the text contains no facts, reply with nothing.`

// Completer is a chat-style language model.
type Completer interface {
	Complete(ctx context.Context, systemInstruction, userText string) (string, error)
}

// Extractor turns a chunk of text into atomic fact statements.
type Extractor struct {
	completer Completer
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLimiter throttles provider calls with a shared token bucket.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *Extractor) {
		e.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Extractor) {
		e.logger = l
	}
}

// NewExtractor creates an Extractor backed by completer.
func NewExtractor(completer Completer, opts ...Option) *Extractor {
	e := &Extractor{
		completer: completer,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "fact-extractor").Logger()
	return e
}

// Extract returns the facts stated in text. Empty text yields no facts
// without calling the provider.
func (e *Extractor) Extract(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}, nil
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, domain.Wrap(domain.ErrExtractionFailed, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	response, err := e.completer.Complete(ctx, SystemInstruction, text)
	if err != nil {
		return nil, domain.Wrap(domain.ErrExtractionFailed, err)
	}

	facts := ParseFacts(response)
	if len(facts) == 0 {
		e.logger.Warn().
			Int("response_len", len(response)).
			Msg("no facts parsed from model response")
	}
	return facts, nil
}
