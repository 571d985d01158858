//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

func TestIngestionJobRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewIngestionJobRepository(pool)
	d := createTestDocument(ctx, t, pool, time.Now())

	job := domain.NewIngestionJob(uuid.NewString(), d.ID, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, job))

	claimed, err := repo.ClaimPending(ctx, 5)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, domain.IngestionJobStatusProcessing, claimed[0].Status)

	again, err := repo.ClaimPending(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, repo.IncrementRetries(ctx, job.ID))
	require.NoError(t, repo.UpdateStatus(ctx, job.ID, domain.IngestionJobStatusFailed, "provider down"))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionJobStatusFailed, got.Status)
	assert.Equal(t, int32(1), got.Retries)
	assert.Equal(t, "provider down", got.Error)
	assert.NotNil(t, got.ProcessedAt)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.NewString(), domain.IngestionJobStatusCompleted, ""), domain.ErrIngestionJobNotFound)
}

func TestIngestionJobRepository_ClaimPendingIsExclusive(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewIngestionJobRepository(pool)

	for i := 0; i < 10; i++ {
		d := createTestDocument(ctx, t, pool, time.Now())
		require.NoError(t, repo.Create(ctx, domain.NewIngestionJob(uuid.NewString(), d.ID, time.Now().UTC())))
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobs, err := repo.ClaimPending(ctx, 3)
			assert.NoError(t, err)
			mu.Lock()
			for _, j := range jobs {
				seen[j.ID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

func TestIngestionJobRepository_RequeueStale(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewIngestionJobRepository(pool)
	d := createTestDocument(ctx, t, pool, time.Now())

	old := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, NewStatusRepository(pool).Create(ctx, domain.NewProcessingStatus(d.ID, old)))
	job := domain.NewIngestionJob(uuid.NewString(), d.ID, old)
	require.NoError(t, repo.Create(ctx, job))
	_, err := repo.ClaimPending(ctx, 1)
	require.NoError(t, err)

	n, err := repo.RequeueStale(ctx, time.Now().UTC().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionJobStatusPending, got.Status)
}
