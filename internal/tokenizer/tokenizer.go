// Package tokenizer counts tokens the way the embedding and completion
// providers bill them. Chunk budgets are expressed in these tokens.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is used when neither an encoding nor a known model is configured.
const DefaultEncoding = "cl100k_base"

// Counter converts text into a token count. Implementations must be
// deterministic and safe for concurrent use.
type Counter interface {
	CountTokens(text string) int
}

// CounterFunc adapts a function to the Counter interface.
type CounterFunc func(text string) int

// CountTokens calls f(text).
func (f CounterFunc) CountTokens(text string) int {
	return f(text)
}

var loaderOnce sync.Once

// useOfflineLoader makes tiktoken read the embedded BPE ranks instead of
// downloading them.
func useOfflineLoader() {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
}

// Tiktoken counts tokens with a BPE encoding.
type Tiktoken struct {
	enc      *tiktoken.Tiktoken
	encoding string
}

// New returns a Tiktoken counter for the named encoding.
func New(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	useOfflineLoader()

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %q: %w", encoding, err)
	}
	return &Tiktoken{enc: enc, encoding: encoding}, nil
}

// ForModel returns the counter matching the model's tokenizer, falling back
// to DefaultEncoding for models tiktoken does not know.
func ForModel(model string) (*Tiktoken, error) {
	useOfflineLoader()

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return New(DefaultEncoding)
	}
	return &Tiktoken{enc: enc, encoding: model}, nil
}

// CountTokens returns the number of tokens in text.
func (t *Tiktoken) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Encoding returns the encoding or model name the counter was built for.
func (t *Tiktoken) Encoding() string {
	return t.encoding
}
