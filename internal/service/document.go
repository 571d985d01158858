package service

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/pagination"
	"github.com/cloo-solutions/docpipe/internal/segment"
	"github.com/cloo-solutions/docpipe/internal/telemetry"
)

// DocumentRepositoryInterface defines the repository interface for document persistence
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	Exists(ctx context.Context, id string) (bool, error)
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*DocumentPageResult, error)
}

type DocumentPageResult struct {
	Items      []*domain.Document
	NextCursor string
	HasMore    bool
}

// StatusRepositoryInterface defines the repository interface for processing status persistence
type StatusRepositoryInterface interface {
	Create(ctx context.Context, s *domain.ProcessingStatus) error
	Get(ctx context.Context, documentID string) (*domain.ProcessingStatus, error)
	ResetForRetry(ctx context.Context, documentID string, now, staleBefore time.Time) (*domain.ProcessingStatus, error)
}

// IngestionJobRepositoryInterface defines the repository interface for queueing ingestion jobs
type IngestionJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.IngestionJob) error
}

// RunController cancels in-process ingestion runs.
type RunController interface {
	Cancel(documentID string) bool
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// DocumentService accepts documents and manages their ingestion lifecycle.
type DocumentService struct {
	docs                DocumentRepositoryInterface
	txRunner            TxRunner
	runs                RunController
	uuidGen             UUIDGenerator
	defaultExtractFacts bool
	staleAfter          time.Duration
	now                 func() time.Time
}

// DocumentServiceConfig holds DocumentService settings.
type DocumentServiceConfig struct {
	DefaultExtractFacts bool
	StaleRunAfter       time.Duration
}

// NewDocumentService creates a new DocumentService instance. runs may be nil
// when this process does not execute ingestion runs.
func NewDocumentService(docs DocumentRepositoryInterface, txRunner TxRunner, runs RunController, cfg DocumentServiceConfig) *DocumentService {
	return NewDocumentServiceWithUUIDGen(docs, txRunner, runs, cfg, &DefaultUUIDGenerator{})
}

// NewDocumentServiceWithUUIDGen creates a DocumentService with a custom UUID generator (for testing)
func NewDocumentServiceWithUUIDGen(docs DocumentRepositoryInterface, txRunner TxRunner, runs RunController, cfg DocumentServiceConfig, uuidGen UUIDGenerator) *DocumentService {
	staleAfter := cfg.StaleRunAfter
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &DocumentService{
		docs:                docs,
		txRunner:            txRunner,
		runs:                runs,
		uuidGen:             uuidGen,
		defaultExtractFacts: cfg.DefaultExtractFacts,
		staleAfter:          staleAfter,
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

// CreateDocumentInput represents the input for submitting a document
type CreateDocumentInput struct {
	Title        string
	Text         string
	SourceKey    string
	ExtractFacts *bool
}

type ListDocumentsInput struct {
	Cursor string
	Limit  int
}

type ListDocumentsOutput struct {
	Items   []*domain.Document
	Cursor  string
	HasMore bool
}

// Create stores the document, its initial uploading status and an ingestion
// job in one transaction.
func (s *DocumentService) Create(ctx context.Context, input CreateDocumentInput) (*domain.Document, *domain.ProcessingStatus, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Create", telemetry.SpanAttributes{
		Operation: "create",
	})
	defer span.End()

	text := strings.TrimSpace(input.Text)
	sourceKey := strings.TrimSpace(input.SourceKey)
	if text == "" && sourceKey == "" {
		return nil, nil, domain.Wrap(domain.ErrInvalidInput, errors.New("text or source_key is required"))
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		if text != "" {
			title = segment.ExtractTitle(text)
		} else {
			title = path.Base(sourceKey)
		}
	}

	extractFacts := s.defaultExtractFacts
	if input.ExtractFacts != nil {
		extractFacts = *input.ExtractFacts
	}

	now := s.now()
	doc := domain.NewDocument(s.uuidGen.NewString(), title, input.Text, sourceKey, extractFacts, now)
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, nil, domain.Wrap(domain.ErrInvalidInput, err)
	}
	status := domain.NewProcessingStatus(doc.ID, now)
	job := domain.NewIngestionJob(s.uuidGen.NewString(), doc.ID, now)

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().Create(ctx, doc); err != nil {
			return err
		}
		if err := repos.Statuses().Create(ctx, status); err != nil {
			return err
		}
		return repos.IngestionJobs().Create(ctx, job)
	})
	if err != nil {
		span.SetError(err)
		return nil, nil, err
	}
	return doc, status, nil
}

// Get retrieves a document by ID
func (s *DocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Get", telemetry.SpanAttributes{
		DocumentID: id,
		Operation:  "get",
	})
	defer span.End()

	return s.docs.GetByID(ctx, id)
}

func (s *DocumentService) List(ctx context.Context, input ListDocumentsInput) (*ListDocumentsOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.List", telemetry.SpanAttributes{
		Operation: "list",
	})
	defer span.End()

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInvalidInput, err)
	}
	result, err := s.docs.ListWithCursor(ctx, cursor, pagination.ClampLimit(input.Limit))
	if err != nil {
		return nil, err
	}
	return &ListDocumentsOutput{
		Items:   result.Items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

// Retry resets a finished status to uploading/0 and queues a new ingestion
// job. It fails with domain.ErrAlreadyRunning while a run is in progress.
func (s *DocumentService) Retry(ctx context.Context, id string) (*domain.ProcessingStatus, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Retry", telemetry.SpanAttributes{
		DocumentID: id,
		Operation:  "retry",
	})
	defer span.End()

	now := s.now()
	var status *domain.ProcessingStatus
	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if _, err := repos.Documents().GetByID(ctx, id); err != nil {
			return err
		}
		var err error
		status, err = repos.Statuses().ResetForRetry(ctx, id, now, now.Add(-s.staleAfter))
		if err != nil {
			return err
		}
		return repos.IngestionJobs().Create(ctx, domain.NewIngestionJob(s.uuidGen.NewString(), id, now))
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// Cancel stops a run executing in this process. The run records itself as
// failed at its next stage boundary.
func (s *DocumentService) Cancel(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Cancel", telemetry.SpanAttributes{
		DocumentID: id,
		Operation:  "cancel",
	})
	defer span.End()

	if s.runs != nil && s.runs.Cancel(id) {
		return nil
	}
	exists, err := s.docs.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}
	return domain.ErrRunNotActive
}
