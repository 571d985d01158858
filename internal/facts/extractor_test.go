package facts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, systemInstruction, userText string) (string, error) {
	args := m.Called(ctx, systemInstruction, userText)
	return args.String(0), args.Error(1)
}

func TestExtractor_Extract(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, SystemInstruction, "Paris is the capital of France. It has 2 million residents.").
		Return("- Paris is the capital of France.\n- Paris has about 2 million residents.\n", nil)

	e := NewExtractor(completer)
	facts, err := e.Extract(context.Background(), "  Paris is the capital of France. It has 2 million residents.  ")

	require.NoError(t, err)
	assert.Equal(t, []string{
		"Paris is the capital of France.",
		"Paris has about 2 million residents.",
	}, facts)
	completer.AssertExpectations(t)
}

func TestExtractor_EmptyTextSkipsProvider(t *testing.T) {
	completer := new(MockCompleter)
	e := NewExtractor(completer)

	facts, err := e.Extract(context.Background(), " \n ")

	require.NoError(t, err)
	assert.Empty(t, facts)
	completer.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtractor_ProviderError(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("upstream 500"))

	e := NewExtractor(completer)
	facts, err := e.Extract(context.Background(), "some text")

	assert.Nil(t, facts)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
	assert.Contains(t, err.Error(), "upstream 500")
}

func TestExtractor_UnparseableResponseYieldsNoFacts(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("Sure! I could not find anything worth listing.", nil)

	e := NewExtractor(completer)
	facts, err := e.Extract(context.Background(), "hello")

	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestExtractor_LimiterHonoursCancelledContext(t *testing.T) {
	completer := new(MockCompleter)
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	require.True(t, limiter.Allow())

	e := NewExtractor(completer, WithLimiter(limiter))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, "text")
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
	completer.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestParseFacts(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []string
	}{
		{"dash bullets", "- one\n- two", []string{"one", "two"}},
		{"mixed markers", "* one\n+ two\n• three", []string{"one", "two", "three"}},
		{"numbered", "1. one\n2) two\n10. three", []string{"one", "two", "three"}},
		{"preamble ignored", "Here are the facts:\n- one\n\nThat's all.", []string{"one"}},
		{"duplicates dropped", "- one\n- one\n- two", []string{"one", "two"}},
		{"empty bullets ignored", "- \n-    \n- real", []string{"real"}},
		{"indented", "   - one\n\t- two", []string{"one", "two"}},
		{"nothing", "", []string{}},
		{"bare number", "2024", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFacts(tt.response))
		})
	}
}
