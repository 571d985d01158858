package domain

import (
	"fmt"
	"time"
)

// Stage is a named phase of the ingestion pipeline
type Stage string

const (
	StageUnknown         Stage = "unknown"
	StageUploading       Stage = "uploading"
	StageProcessing      Stage = "processing"
	StageFactsExtracting Stage = "facts_extracting"
	StageFactsSaving     Stage = "facts_saving"
	StageEmbedding       Stage = "embedding"
	StageSaving          Stage = "saving"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
)

// ProgressRange is the slice of the 0-100 scale reserved for a stage.
type ProgressRange struct {
	Start int
	End   int
}

// At maps a fraction in [0,1] of the stage's work onto its progress range.
func (r ProgressRange) At(done, total int) int {
	if total <= 0 || done >= total {
		return r.End
	}
	if done <= 0 {
		return r.Start
	}
	return r.Start + (r.End-r.Start)*done/total
}

var stageRanges = map[Stage]ProgressRange{
	StageUploading:       {Start: 0, End: 10},
	StageProcessing:      {Start: 10, End: 30},
	StageFactsExtracting: {Start: 30, End: 50},
	StageFactsSaving:     {Start: 50, End: 55},
	StageEmbedding:       {Start: 55, End: 90},
	StageSaving:          {Start: 90, End: 100},
	StageCompleted:       {Start: 100, End: 100},
}

var stageRanks = map[Stage]int{
	StageUnknown:         0,
	StageUploading:       1,
	StageProcessing:      2,
	StageFactsExtracting: 3,
	StageFactsSaving:     4,
	StageEmbedding:       5,
	StageSaving:          6,
	StageCompleted:       7,
	StageFailed:          7,
}

// Range returns the progress sub-range owned by the stage.
func (s Stage) Range() ProgressRange {
	return stageRanges[s]
}

// IsTerminal reports whether no further transitions happen without a retry-reset.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// IsValid reports whether s is a known stage.
func (s Stage) IsValid() bool {
	_, ok := stageRanks[s]
	return ok
}

// CanTransition reports whether a run may move from s to next.
// Stages only move forward (optional stages may be skipped); failed is
// reachable from every non-terminal stage.
func (s Stage) CanTransition(next Stage) bool {
	if s.IsTerminal() || !next.IsValid() || next == StageUnknown {
		return false
	}
	if next == StageFailed {
		return true
	}
	return stageRanks[next] >= stageRanks[s]
}

// ProcessingStatus is the durable snapshot of a document's pipeline progress
type ProcessingStatus struct {
	DocumentID string
	Stage      Stage
	Progress   int
	Error      string
	ChunkCount int
	RunID      string
	UpdatedAt  time.Time
}

// NewProcessingStatus creates the initial status written when a document is accepted.
func NewProcessingStatus(documentID string, now time.Time) *ProcessingStatus {
	return &ProcessingStatus{
		DocumentID: documentID,
		Stage:      StageUploading,
		Progress:   0,
		UpdatedAt:  now,
	}
}

// Advance moves the status to stage at the given progress. Progress never
// decreases; it is clamped to the stage's range.
func (p *ProcessingStatus) Advance(stage Stage, progress int, now time.Time) error {
	if !p.Stage.CanTransition(stage) {
		return NewDomainErrorWithCause(ErrInvalidTransition.Code, ErrInvalidTransition.Message,
			fmt.Errorf("%s -> %s", p.Stage, stage))
	}
	r := stage.Range()
	if progress < r.Start {
		progress = r.Start
	}
	if progress > r.End {
		progress = r.End
	}
	if progress < p.Progress {
		progress = p.Progress
	}
	p.Stage = stage
	p.Progress = progress
	p.UpdatedAt = now
	return nil
}

// Fail moves the status to failed, freezing progress at its last value.
func (p *ProcessingStatus) Fail(cause string, now time.Time) {
	p.Stage = StageFailed
	p.Error = cause
	p.UpdatedAt = now
}

// Reset prepares a terminal status for another run (retry-reset).
func (p *ProcessingStatus) Reset(now time.Time) error {
	if !p.Stage.IsTerminal() && p.Stage != StageUnknown {
		return ErrAlreadyRunning
	}
	p.Stage = StageUploading
	p.Progress = 0
	p.Error = ""
	p.ChunkCount = 0
	p.RunID = ""
	p.UpdatedAt = now
	return nil
}

// Clone returns a copy safe to hand to readers.
func (p *ProcessingStatus) Clone() *ProcessingStatus {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// ValidateProcessingStatus validates a ProcessingStatus instance
func ValidateProcessingStatus(p *ProcessingStatus) error {
	if p == nil {
		return fmt.Errorf("processing status cannot be nil")
	}
	if p.DocumentID == "" {
		return Wrap(ErrMissingRequiredField, fmt.Errorf("processing status DocumentID is required"))
	}
	if !p.Stage.IsValid() {
		return Wrap(ErrInvalidStage, fmt.Errorf("got %q", p.Stage))
	}
	if p.Progress < 0 || p.Progress > 100 {
		return fmt.Errorf("processing status Progress out of range: %d", p.Progress)
	}
	if p.ChunkCount < 0 {
		return fmt.Errorf("processing status ChunkCount cannot be negative")
	}
	return nil
}
