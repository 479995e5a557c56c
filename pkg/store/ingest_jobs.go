package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// IngestJobRepo persists models.IngestJob rows.
type IngestJobRepo struct {
	db *sqlx.DB
}

// NewIngestJobRepo constructs an IngestJobRepo.
func NewIngestJobRepo(db *sqlx.DB) *IngestJobRepo { return &IngestJobRepo{db: db} }

// Create inserts a new job, defaulting Status to pending and ID to a fresh
// UUID when not already set.
func (r *IngestJobRepo) Create(ctx context.Context, job *models.IngestJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobPending
	}
	if job.Metadata == nil {
		job.Metadata = models.JSONMap{}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingest_jobs (id, source_type, origin, sensitivity, uploader, file_pointer, byte_size, metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.SourceType, job.Origin, job.Sensitivity, job.Uploader, job.FilePointer, job.ByteSize, job.Metadata, job.Status)
	if err != nil {
		return fmt.Errorf("inserting ingest job: %w", err)
	}
	return nil
}

// Get fetches a job by ID.
func (r *IngestJobRepo) Get(ctx context.Context, id string) (*models.IngestJob, error) {
	var job models.IngestJob
	err := r.db.GetContext(ctx, &job, `SELECT * FROM ingest_jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching ingest job: %w", err)
	}
	return &job, nil
}

// MarkStarted records the job transitioning into processing.
func (r *IngestJobRepo) MarkStarted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ingest_jobs SET status = $2, started_at = now() WHERE id = $1`,
		id, models.JobProcessing)
	return err
}

// MarkCompleted finalizes a job as completed with its final chunk count.
func (r *IngestJobRepo) MarkCompleted(ctx context.Context, id string, chunksCreated int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ingest_jobs SET status = $2, chunks_created = $3, completed_at = now()
		WHERE id = $1`, id, models.JobCompleted, chunksCreated)
	return err
}

// MarkFailed finalizes a job as failed with an error message.
func (r *IngestJobRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ingest_jobs SET status = $2, error_message = $3, completed_at = now()
		WHERE id = $1`, id, models.JobFailed, errMsg)
	return err
}

// IncrementRetry bumps retry_count, resets status to pending, and returns
// the new retry count so the caller can compare against a max-retries cap.
func (r *IngestJobRepo) IncrementRetry(ctx context.Context, id string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		UPDATE ingest_jobs SET retry_count = retry_count + 1, status = $2,
			error_message = NULL, completed_at = NULL
		WHERE id = $1 RETURNING retry_count`, id, models.JobPending)
	return count, err
}

// UpdateChunksCreated records progress mid-job.
func (r *IngestJobRepo) UpdateChunksCreated(ctx context.Context, id string, count int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE ingest_jobs SET chunks_created = $2 WHERE id = $1`, id, count)
	return err
}

// ListByStatus returns jobs in the given status, oldest first, for resume
// and orphan-retry scanning.
func (r *IngestJobRepo) ListByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.IngestJob, error) {
	var jobs []*models.IngestJob
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM ingest_jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("listing ingest jobs: %w", err)
	}
	return jobs, nil
}

// ClaimNext atomically picks the oldest pending job and marks it
// processing, using SKIP LOCKED so concurrent workers never claim the same
// row. Returns apperrors.NotFound when no pending job is available.
func (r *IngestJobRepo) ClaimNext(ctx context.Context) (*models.IngestJob, error) {
	var job models.IngestJob
	err := r.db.GetContext(ctx, &job, `
		UPDATE ingest_jobs SET status = $1, started_at = now()
		WHERE id = (
			SELECT id FROM ingest_jobs
			WHERE status = $2
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING *`, models.JobProcessing, models.JobPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claiming ingest job: %w", err)
	}
	return &job, nil
}

// IngestJobFilter narrows ListFiltered to a caller's jobs and/or a status,
// origin, or source type.
type IngestJobFilter struct {
	Uploader   string // empty means any uploader
	Status     models.JobStatus
	Origin     string
	SourceType models.SourceType
	Skip       int
	Limit      int
}

// ListFiltered paginates jobs matching filter, newest first, for the
// ingest jobs listing endpoint.
func (r *IngestJobRepo) ListFiltered(ctx context.Context, filter IngestJobFilter) ([]*models.IngestJob, error) {
	query := `SELECT * FROM ingest_jobs WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Uploader != "" {
		query += " AND uploader = " + arg(filter.Uploader)
	}
	if filter.Status != "" {
		query += " AND status = " + arg(filter.Status)
	}
	if filter.Origin != "" {
		query += " AND origin = " + arg(filter.Origin)
	}
	if filter.SourceType != "" {
		query += " AND source_type = " + arg(filter.SourceType)
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT " + arg(limit) + " OFFSET " + arg(filter.Skip)

	var jobs []*models.IngestJob
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("listing ingest jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job row. Callers are responsible for cascading the
// deletion to its chunks via search.Service.DeleteBy first.
func (r *IngestJobRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ingest_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting ingest job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting ingest job: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound
	}
	return nil
}

// ListStuckProcessing returns jobs that have been "processing" longer than
// staleAfter, the orphan-detection query the ingest coordinator polls.
func (r *IngestJobRepo) ListStuckProcessing(ctx context.Context, staleAfter time.Duration) ([]*models.IngestJob, error) {
	var jobs []*models.IngestJob
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM ingest_jobs
		WHERE status = $1 AND started_at IS NOT NULL AND started_at < $2
		ORDER BY started_at ASC`, models.JobProcessing, time.Now().Add(-staleAfter))
	if err != nil {
		return nil, fmt.Errorf("listing stuck ingest jobs: %w", err)
	}
	return jobs, nil
}
