package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type MockModel struct {
	mock.Mock
}

func (m *MockModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	args := m.Called(ctx, messages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llms.ContentResponse), args.Error(1)
}

func (m *MockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func TestProvider_Complete(t *testing.T) {
	model := new(MockModel)
	p := NewProvider(model, new(MockEmbedder), 0, zerolog.Nop())

	model.On("GenerateContent", mock.Anything, mock.MatchedBy(func(msgs []llms.MessageContent) bool {
		return len(msgs) == 2 &&
			msgs[0].Role == llms.ChatMessageTypeSystem &&
			msgs[1].Role == llms.ChatMessageTypeHuman &&
			msgs[1].Parts[0] == llms.TextContent{Text: "chunk"}
	})).Return(&llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "- a fact"}},
	}, nil)

	out, err := p.Complete(context.Background(), "instruction", "chunk")

	require.NoError(t, err)
	assert.Equal(t, "- a fact", out)
	model.AssertExpectations(t)
}

func TestProvider_Complete_NoChoices(t *testing.T) {
	model := new(MockModel)
	p := NewProvider(model, new(MockEmbedder), 0, zerolog.Nop())
	model.On("GenerateContent", mock.Anything, mock.Anything).Return(&llms.ContentResponse{}, nil)

	_, err := p.Complete(context.Background(), "instruction", "chunk")

	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestProvider_Complete_Error(t *testing.T) {
	model := new(MockModel)
	p := NewProvider(model, new(MockEmbedder), 0, zerolog.Nop())
	model.On("GenerateContent", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := p.Complete(context.Background(), "instruction", "chunk")

	assert.ErrorContains(t, err, "connection refused")
}

func TestProvider_Embed(t *testing.T) {
	embedder := new(MockEmbedder)
	p := NewProvider(new(MockModel), embedder, 0, zerolog.Nop())
	embedder.On("EmbedQuery", mock.Anything, "hello").Return([]float32{1, 2}, nil)

	vec, err := p.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}

func TestProvider_EmptyText(t *testing.T) {
	embedder := new(MockEmbedder)
	model := new(MockModel)
	p := NewProvider(model, embedder, 0, zerolog.Nop())

	_, err := p.Embed(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = p.Complete(context.Background(), "instruction", "")
	assert.ErrorIs(t, err, ErrEmptyText)
	embedder.AssertNotCalled(t, "EmbedQuery", mock.Anything, mock.Anything)
	model.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(Config{Driver: "bedrock"}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestNew_Ollama(t *testing.T) {
	p, err := New(Config{
		Driver:         DriverOllama,
		ServerURL:      "http://localhost:11434",
		EmbeddingModel: "nomic-embed-text",
		ChatModel:      "llama3.2",
	}, zerolog.Nop())

	require.NoError(t, err)
	assert.NotNil(t, p.model)
	assert.NotNil(t, p.embedder)
}
