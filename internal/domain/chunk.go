package domain

import "strings"

// Chunk is a bounded, token-sized segment of a document's text.
type Chunk struct {
	Content       string
	TokenCount    int
	SequenceIndex int
}

// Fact is a short, self-contained statement extracted from one chunk.
type Fact struct {
	Text             string
	SourceChunkIndex int
}

// Embedding is the vector representation of a chunk or fact.
type Embedding struct {
	Vector         []float32
	Dimensionality int
	OwnerID        string
}

// NewEmbedding creates an Embedding whose dimensionality matches the vector length
func NewEmbedding(ownerID string, vector []float32) Embedding {
	return Embedding{
		Vector:         vector,
		Dimensionality: len(vector),
		OwnerID:        ownerID,
	}
}

// StoredChunk is a chunk as persisted, with its durable identifier.
type StoredChunk struct {
	ID         string
	DocumentID string
	Chunk
}

// StoredFact is a fact as persisted, with its durable identifier.
type StoredFact struct {
	ID         string
	DocumentID string
	Fact
}

// ValidateChunks checks the segmenter invariants on an ordered chunk sequence:
// non-empty content and a gapless sequence starting at zero.
func ValidateChunks(chunks []Chunk) error {
	for i, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			return NewDomainError(ErrCodeValidation, "chunk content cannot be empty")
		}
		if c.SequenceIndex != i {
			return NewDomainError(ErrCodeValidation, "chunk sequence index must be gapless")
		}
		if c.TokenCount < 0 {
			return NewDomainError(ErrCodeValidation, "chunk token count cannot be negative")
		}
	}
	return nil
}
