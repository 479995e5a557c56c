package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

// ChunkRepo persists models.KnowledgeChunk rows. It uses the raw pgx pool
// (not sqlx) for InsertBatch so large ingestion runs can use pgx's CopyFrom
// fast path instead of one round trip per chunk.
type ChunkRepo struct {
	db   *sqlx.DB
	pool *pgxpool.Pool
}

// NewChunkRepo constructs a ChunkRepo.
func NewChunkRepo(db *sqlx.DB, pool *pgxpool.Pool) *ChunkRepo {
	return &ChunkRepo{db: db, pool: pool}
}

// Insert writes a single chunk, assigning it a fresh ID if unset. Duplicate
// (job_id, chunk_index) pairs are treated as already-ingested (ON CONFLICT
// DO NOTHING), which is what makes job resumption after a crash idempotent.
func (r *ChunkRepo) Insert(ctx context.Context, c *models.KnowledgeChunk) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Metadata == nil {
		c.Metadata = models.JSONMap{}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO knowledge_chunks
			(id, job_id, source_type, source_location, chunk_text, chunk_index, metadata,
			 embedding_model, embedding_version, vector_id, sensitive, redacted, pii_types)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (job_id, chunk_index) DO NOTHING`,
		c.ID, c.JobID, c.SourceType, c.SourceLocation, c.ChunkText, c.ChunkIndex, c.Metadata,
		c.EmbeddingModel, c.EmbeddingVersion, c.VectorID, c.Sensitive, c.Redacted, c.PIITypes)
	if err != nil {
		return fmt.Errorf("inserting chunk: %w", err)
	}
	return nil
}

// InsertBatch bulk-loads chunks with pgx's CopyFrom, used by the ingestion
// coordinator when flushing a full batch of chunked+redacted documents.
// Rows that collide with an existing (job_id, chunk_index) are expected to
// have been filtered out by the caller beforehand (CopyFrom can't express
// ON CONFLICT), via ExistingChunkIndexes.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []*models.KnowledgeChunk) (int64, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	rows := make([][]any, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.Metadata == nil {
			c.Metadata = models.JSONMap{}
		}
		rows[i] = []any{
			c.ID, c.JobID, c.SourceType, c.SourceLocation, c.ChunkText, c.ChunkIndex, c.Metadata,
			c.EmbeddingModel, c.EmbeddingVersion, c.VectorID, c.Sensitive, c.Redacted, []string(c.PIITypes),
		}
	}
	return r.pool.CopyFrom(ctx, pgx.Identifier{"knowledge_chunks"},
		[]string{"id", "job_id", "source_type", "source_location", "chunk_text", "chunk_index", "metadata",
			"embedding_model", "embedding_version", "vector_id", "sensitive", "redacted", "pii_types"},
		pgx.CopyFromRows(rows))
}

// ExistingChunkIndexes returns the chunk_index values already persisted for
// a job, so a resumed ingestion run can skip documents it already chunked.
func (r *ChunkRepo) ExistingChunkIndexes(ctx context.Context, jobID string) (map[int]bool, error) {
	var indexes []int
	err := r.db.SelectContext(ctx, &indexes, `SELECT chunk_index FROM knowledge_chunks WHERE job_id = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing existing chunk indexes: %w", err)
	}
	out := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		out[i] = true
	}
	return out, nil
}

// Get fetches a chunk by ID.
func (r *ChunkRepo) Get(ctx context.Context, id string) (*models.KnowledgeChunk, error) {
	var c models.KnowledgeChunk
	err := r.db.GetContext(ctx, &c, `SELECT * FROM knowledge_chunks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching chunk: %w", err)
	}
	return &c, nil
}

// DeleteByJob removes every chunk belonging to a job (cascades automatically
// via the FK, but exposed directly for the export/delete_by_filter paths
// that don't want to delete the job row itself).
func (r *ChunkRepo) DeleteByJob(ctx context.Context, jobID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE job_id = $1`, jobID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks by job: %w", err)
	}
	return res.RowsAffected()
}

// ListByIDs batch-fetches chunks in ID order for search-result hydration.
func (r *ChunkRepo) ListByIDs(ctx context.Context, ids []string) ([]*models.KnowledgeChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM knowledge_chunks WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)
	var chunks []*models.KnowledgeChunk
	if err := r.db.SelectContext(ctx, &chunks, query, args...); err != nil {
		return nil, fmt.Errorf("listing chunks by id: %w", err)
	}
	return chunks, nil
}
