//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

func TestStatusRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewStatusRepository(pool)
	d := createTestDocument(ctx, t, pool, time.Now())

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.Create(ctx, domain.NewProcessingStatus(d.ID, now)))

	got, err := repo.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageUploading, got.Stage)
	assert.Equal(t, 0, got.Progress)
	assert.Empty(t, got.RunID)
	assert.Empty(t, got.Error)

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrStatusNotFound)
}

func TestStatusRepository_Acquire(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewStatusRepository(pool)
	d := createTestDocument(ctx, t, pool, time.Now())
	now := time.Now().UTC().Truncate(time.Microsecond)
	stale := now.Add(-30 * time.Minute)

	// unowned initial record
	require.NoError(t, repo.Create(ctx, domain.NewProcessingStatus(d.ID, now)))

	runA := uuid.NewString()
	s, err := repo.Acquire(ctx, d.ID, runA, now, stale)
	require.NoError(t, err)
	assert.Equal(t, runA, s.RunID)
	assert.Equal(t, domain.StageUploading, s.Stage)

	runB := uuid.NewString()
	current, err := repo.Acquire(ctx, d.ID, runB, now, stale)
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)
	require.NotNil(t, current)
	assert.Equal(t, runA, current.RunID)

	// a terminal run may be replaced
	s.Fail("boom", now)
	require.NoError(t, repo.UpdateOwned(ctx, s))
	s, err = repo.Acquire(ctx, d.ID, runB, now, stale)
	require.NoError(t, err)
	assert.Equal(t, runB, s.RunID)
	assert.Empty(t, s.Error)
	assert.Equal(t, 0, s.Progress)
}

func TestStatusRepository_AcquireTakesOverStaleRun(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewStatusRepository(pool)
	d := createTestDocument(ctx, t, pool, time.Now())
	old := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)

	_, err := repo.Acquire(ctx, d.ID, uuid.NewString(), old, old.Add(-time.Hour))
	require.NoError(t, err)

	now := time.Now().UTC()
	runB := uuid.NewString()
	s, err := repo.Acquire(ctx, d.ID, runB, now, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, runB, s.RunID)
}

func TestStatusRepository_UpdateOwned(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewStatusRepository(pool)
	d := createTestDocument(ctx, t, pool, time.Now())
	now := time.Now().UTC().Truncate(time.Microsecond)

	s, err := repo.Acquire(ctx, d.ID, uuid.NewString(), now, now.Add(-time.Minute))
	require.NoError(t, err)

	require.NoError(t, s.Advance(domain.StageProcessing, 20, now))
	require.NoError(t, repo.UpdateOwned(ctx, s))

	got, err := repo.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageProcessing, got.Stage)
	assert.Equal(t, 20, got.Progress)

	intruder := s.Clone()
	intruder.RunID = uuid.NewString()
	assert.ErrorIs(t, repo.UpdateOwned(ctx, intruder), domain.ErrStatusConflict)
}

func TestStatusRepository_ResetForRetry(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewStatusRepository(pool)
	d := createTestDocument(ctx, t, pool, time.Now())
	now := time.Now().UTC().Truncate(time.Microsecond)
	stale := now.Add(-30 * time.Minute)

	s, err := repo.Acquire(ctx, d.ID, uuid.NewString(), now, stale)
	require.NoError(t, err)

	_, err = repo.ResetForRetry(ctx, d.ID, now, stale)
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)

	require.NoError(t, s.Advance(domain.StageCompleted, 100, now))
	s.ChunkCount = 3
	require.NoError(t, repo.UpdateOwned(ctx, s))

	reset, err := repo.ResetForRetry(ctx, d.ID, now, stale)
	require.NoError(t, err)
	assert.Equal(t, domain.StageUploading, reset.Stage)
	assert.Equal(t, 0, reset.Progress)
	assert.Equal(t, 0, reset.ChunkCount)
	assert.Empty(t, reset.RunID)
}
