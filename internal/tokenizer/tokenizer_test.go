package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTiktoken_CountTokens(t *testing.T) {
	tok, err := New("")
	require.NoError(t, err)

	assert.Equal(t, DefaultEncoding, tok.Encoding())
	assert.Equal(t, 0, tok.CountTokens(""))
	assert.Equal(t, 2, tok.CountTokens("hello world"))
}

func TestTiktoken_Deterministic(t *testing.T) {
	tok, err := New(DefaultEncoding)
	require.NoError(t, err)

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	first := tok.CountTokens(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, tok.CountTokens(text))
	}
	assert.Greater(t, first, 0)
	assert.Less(t, first, len(text))
}

func TestTiktoken_LongerTextHasMoreTokens(t *testing.T) {
	tok, err := New(DefaultEncoding)
	require.NoError(t, err)

	short := tok.CountTokens("one sentence.")
	long := tok.CountTokens("one sentence. and then another sentence follows it.")
	assert.Greater(t, long, short)
}

func TestNew_UnknownEncoding(t *testing.T) {
	_, err := New("no_such_encoding")
	assert.Error(t, err)
}

func TestForModel_FallsBack(t *testing.T) {
	tok, err := ForModel("some-local-model")
	require.NoError(t, err)
	assert.Equal(t, DefaultEncoding, tok.Encoding())

	tok, err = ForModel("text-embedding-ada-002")
	require.NoError(t, err)
	assert.Equal(t, 2, tok.CountTokens("hello world"))
}

func TestCounterFunc(t *testing.T) {
	c := CounterFunc(func(s string) int { return len(strings.Fields(s)) })
	assert.Equal(t, 3, c.CountTokens("a b c"))
}
