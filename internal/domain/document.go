package domain

import (
	"fmt"
	"strings"
	"time"
)

// Document is a submitted source whose text is ingested by the pipeline
type Document struct {
	ID           string
	Title        string
	Content      string // inline text; empty when SourceKey is set
	SourceKey    string // object key in blob storage
	ExtractFacts bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewDocument creates a new Document instance
func NewDocument(id, title, content, sourceKey string, extractFacts bool, now time.Time) *Document {
	return &Document{
		ID:           id,
		Title:        title,
		Content:      content,
		SourceKey:    sourceKey,
		ExtractFacts: extractFacts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasInlineContent reports whether the text travels with the document row.
func (d *Document) HasInlineContent() bool {
	return strings.TrimSpace(d.Content) != ""
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return Wrap(ErrMissingRequiredField, fmt.Errorf("document ID is required"))
	}

	if !d.HasInlineContent() && d.SourceKey == "" {
		return fmt.Errorf("document requires either Content or SourceKey")
	}

	if len(d.Title) > 512 {
		return fmt.Errorf("document Title must be at most 512 characters")
	}

	return nil
}
