package ingest

import (
	"context"
	"time"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

// Store persists run state and the artifacts a run produces.
type Store interface {
	// AcquireRun claims the document for runID and resets its status to
	// uploading/0. It succeeds when there is no record, the record has no
	// run, is terminal, or was last written more than staleAfter ago.
	// Otherwise it returns the current status and domain.ErrAlreadyRunning.
	AcquireRun(ctx context.Context, documentID, runID string, staleAfter time.Duration) (*domain.ProcessingStatus, error)
	// UpsertStatus writes status if it is still owned by status.RunID and
	// returns domain.ErrStatusConflict otherwise.
	UpsertStatus(ctx context.Context, status *domain.ProcessingStatus) error
	GetStatus(ctx context.Context, documentID string) (*domain.ProcessingStatus, error)

	// SaveChunks stores chunks and returns their ids in input order.
	SaveChunks(ctx context.Context, documentID string, chunks []domain.Chunk) ([]string, error)
	// SaveFacts stores facts and returns their ids in input order.
	SaveFacts(ctx context.Context, documentID string, facts []domain.Fact) ([]string, error)
	// SaveEmbeddings stores vectors keyed by their OwnerID.
	SaveEmbeddings(ctx context.Context, documentID string, embeddings []domain.Embedding) error
	// CountChunks returns the number of chunks stored for the document.
	CountChunks(ctx context.Context, documentID string) (int, error)
	// DeleteArtifacts removes chunks, facts and embeddings of a document.
	DeleteArtifacts(ctx context.Context, documentID string) error
}

// Segmenter splits text into ordered chunks.
type Segmenter interface {
	Segment(text string) ([]domain.Chunk, error)
}

// FactExtractor derives fact statements from chunk text.
type FactExtractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// EmbeddingGenerator turns text into a vector.
type EmbeddingGenerator interface {
	Generate(ctx context.Context, text string) (domain.Embedding, error)
}
