package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIngestionJob(t *testing.T) {
	now := time.Now()
	job := NewIngestionJob("job1", "doc1", now)

	assert.Equal(t, "job1", job.ID)
	assert.Equal(t, "doc1", job.DocumentID)
	assert.Equal(t, IngestionJobStatusPending, job.Status)
	assert.Equal(t, int32(0), job.Retries)
	assert.Equal(t, now, job.CreatedAt)
	assert.Nil(t, job.ProcessedAt)
}

func TestValidateIngestionJob(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		job     *IngestionJob
		wantErr bool
	}{
		{"valid job", NewIngestionJob("job1", "doc1", now), false},
		{"nil job", nil, true},
		{"missing ID", &IngestionJob{DocumentID: "doc1", Status: IngestionJobStatusPending}, true},
		{"missing document", &IngestionJob{ID: "job1", Status: IngestionJobStatusPending}, true},
		{"invalid status", &IngestionJob{ID: "job1", DocumentID: "doc1", Status: "bogus"}, true},
		{"negative retries", &IngestionJob{ID: "job1", DocumentID: "doc1", Status: IngestionJobStatusFailed, Retries: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestionJob(tt.job)
			if tt.name == "invalid status" {
				assert.ErrorIs(t, err, ErrInvalidIngestionJobStatus)
			}
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
