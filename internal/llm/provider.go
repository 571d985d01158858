// Package llm serves embeddings and fact-extraction completions through
// langchaingo, for Ollama and OpenAI-compatible servers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	ErrEmptyText     = errors.New("text cannot be empty")
	ErrNoChoices     = errors.New("model returned no choices")
	ErrUnknownDriver = errors.New("unknown llm driver")
)

const (
	DriverOllama = "ollama"
	DriverOpenAI = "openai"
)

// Config selects a backend and its models.
type Config struct {
	Driver         string
	ServerURL      string
	Token          string
	EmbeddingModel string
	ChatModel      string
	Temperature    float64
}

// Provider implements the embedding provider and the fact completer.
type Provider struct {
	model       llms.Model
	embedder    embeddings.Embedder
	temperature float64
	logger      zerolog.Logger
}

// New builds a Provider for cfg.Driver.
func New(cfg Config, logger zerolog.Logger) (*Provider, error) {
	var (
		chat      llms.Model
		embedding embeddings.EmbedderClient
		err       error
	)
	switch cfg.Driver {
	case DriverOllama:
		chat, embedding, err = newOllama(cfg)
	case DriverOpenAI:
		chat, embedding, err = newOpenAI(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(embedding, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return NewProvider(chat, embedder, cfg.Temperature, logger.With().Str("driver", cfg.Driver).Logger()), nil
}

// NewProvider wires an existing model and embedder.
func NewProvider(model llms.Model, embedder embeddings.Embedder, temperature float64, logger zerolog.Logger) *Provider {
	return &Provider{
		model:       model,
		embedder:    embedder,
		temperature: temperature,
		logger:      logger.With().Str("component", "llm-provider").Logger(),
	}
}

func newOllama(cfg Config) (llms.Model, embeddings.EmbedderClient, error) {
	chat, err := ollama.New(ollama.WithServerURL(cfg.ServerURL), ollama.WithModel(cfg.ChatModel))
	if err != nil {
		return nil, nil, fmt.Errorf("create ollama chat client: %w", err)
	}
	emb, err := ollama.New(ollama.WithServerURL(cfg.ServerURL), ollama.WithModel(cfg.EmbeddingModel))
	if err != nil {
		return nil, nil, fmt.Errorf("create ollama embedding client: %w", err)
	}
	return chat, emb, nil
}

func newOpenAI(cfg Config) (llms.Model, embeddings.EmbedderClient, error) {
	token := cfg.Token
	if token == "" {
		// local OpenAI-compatible servers accept any token
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.ChatModel),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.ServerURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.ServerURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create openai client: %w", err)
	}
	return client, client, nil
}

// Embed returns the embedding vector for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vec, nil
}

// Complete sends the instruction as the system message and text as the
// human message, returning the first choice.
func (p *Provider) Complete(ctx context.Context, systemInstruction, userText string) (string, error) {
	if strings.TrimSpace(userText) == "" {
		return "", ErrEmptyText
	}
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemInstruction),
		llms.TextParts(llms.ChatMessageTypeHuman, userText),
	}

	resp, err := p.model.GenerateContent(ctx, content, llms.WithTemperature(p.temperature))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	p.logger.Debug().Int("chars", len(resp.Choices[0].Content)).Msg("completion received")
	return resp.Choices[0].Content, nil
}
