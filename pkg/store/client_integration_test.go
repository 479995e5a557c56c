package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/store"
)

// TestNewClientAppliesMigrations verifies that store.NewClient, which runs
// the embedded migrations, succeeds against a freshly created database and
// leaves a healthy connection.
func TestNewClientAppliesMigrations(t *testing.T) {
	client := newTestStore(t)

	status, err := store.Health(context.Background(), client.DB)
	require.NoError(t, err)
	require.Equal(t, "healthy", status.Status)
}

func TestIngestJobRepoRoundTrip(t *testing.T) {
	client := newTestStore(t)
	repo := store.NewIngestJobRepo(client.DB)
	ctx := context.Background()

	job := &models.IngestJob{
		SourceType:  models.SourcePaste,
		Origin:      "test-suite",
		Sensitivity: models.SensitivityInternal,
		Uploader:    "u-1",
		ByteSize:    42,
	}
	require.NoError(t, repo.Create(ctx, job))
	require.NotEmpty(t, job.ID)
	require.Equal(t, models.JobPending, job.Status)

	fetched, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, job.Origin, fetched.Origin)
	require.Equal(t, models.SourcePaste, fetched.SourceType)

	require.NoError(t, repo.MarkStarted(ctx, job.ID))
	started, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobProcessing, started.Status)
	require.NotNil(t, started.StartedAt)

	require.NoError(t, repo.MarkCompleted(ctx, job.ID, 7))
	completed, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobCompleted, completed.Status)
	require.Equal(t, 7, completed.ChunksCreated)
}

func TestIngestJobRepoGetMissingReturnsNotFound(t *testing.T) {
	client := newTestStore(t)
	repo := store.NewIngestJobRepo(client.DB)

	_, err := repo.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, apperrors.NotFound)
}
