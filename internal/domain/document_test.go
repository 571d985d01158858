package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateDocument(t *testing.T) {
	now := time.Now()

	assert.NoError(t, ValidateDocument(NewDocument("d1", "Title", "body", "", true, now)))
	assert.NoError(t, ValidateDocument(NewDocument("d1", "", "", "uploads/d1.md", false, now)))
	assert.Error(t, ValidateDocument(nil))
	assert.Error(t, ValidateDocument(NewDocument("", "t", "body", "", false, now)))
	assert.Error(t, ValidateDocument(NewDocument("d1", "t", "   ", "", false, now)))
	assert.Error(t, ValidateDocument(NewDocument("d1", strings.Repeat("x", 513), "body", "", false, now)))
}

func TestValidateChunks(t *testing.T) {
	ok := []Chunk{{Content: "a", TokenCount: 1, SequenceIndex: 0}, {Content: "b", TokenCount: 1, SequenceIndex: 1}}
	assert.NoError(t, ValidateChunks(ok))

	gap := []Chunk{{Content: "a", SequenceIndex: 0}, {Content: "b", SequenceIndex: 2}}
	assert.Error(t, ValidateChunks(gap))

	empty := []Chunk{{Content: "  ", SequenceIndex: 0}}
	assert.Error(t, ValidateChunks(empty))
}
