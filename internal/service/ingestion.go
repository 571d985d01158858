package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/ingest"
	"github.com/cloo-solutions/docpipe/internal/storage"
	"github.com/cloo-solutions/docpipe/internal/telemetry"
)

// DocumentReader loads accepted documents.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// TextSource fetches document text kept in blob storage.
type TextSource interface {
	GetObjectText(ctx context.Context, key string) (string, error)
}

// Ingester runs the ingestion pipeline for one document.
type Ingester interface {
	Run(ctx context.Context, req ingest.Request) (*domain.ProcessingStatus, error)
}

// IngestionService resolves a document's text and hands it to the pipeline.
type IngestionService struct {
	docs     DocumentReader
	source   TextSource
	ingester Ingester
	logger   zerolog.Logger
}

// NewIngestionService creates an IngestionService. source may be nil when
// blob storage is not configured; documents with a source key then fail.
func NewIngestionService(docs DocumentReader, source TextSource, ingester Ingester, logger zerolog.Logger) *IngestionService {
	return &IngestionService{
		docs:     docs,
		source:   source,
		ingester: ingester,
		logger:   logger.With().Str("component", "ingestion-service").Logger(),
	}
}

// ProcessDocument ingests the document identified by documentID.
func (s *IngestionService) ProcessDocument(ctx context.Context, documentID string) (*domain.ProcessingStatus, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.ProcessDocument", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "ingest",
	})
	defer span.End()

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	status, err := s.ingester.Run(ctx, ingest.Request{
		DocumentID:   doc.ID,
		Text:         doc.Content,
		ExtractFacts: doc.ExtractFacts,
		Load: func(ctx context.Context) (string, error) {
			return s.loadText(ctx, doc)
		},
	})
	if err != nil {
		span.SetError(err)
	}
	return status, err
}

func (s *IngestionService) loadText(ctx context.Context, doc *domain.Document) (string, error) {
	if doc.SourceKey == "" {
		return "", domain.Wrap(domain.ErrInvalidInput, errors.New("document has neither content nor source key"))
	}
	if s.source == nil {
		return "", domain.Wrap(domain.ErrConfiguration, errors.New("blob storage is not configured"))
	}

	s.logger.Debug().Str("document_id", doc.ID).Str("source_key", doc.SourceKey).Msg("fetching document text")
	text, err := s.source.GetObjectText(ctx, doc.SourceKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrObjectTooLarge) || errors.Is(err, storage.ErrNotText) {
			return "", domain.Wrap(domain.ErrInvalidInput, err)
		}
		return "", err
	}
	return text, nil
}
