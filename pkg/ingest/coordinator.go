// Package ingest implements the coordinator described in §4.4: it drives
// one IngestJob from pending to a terminal status, running every parsed
// document through PII redaction, chunking, embedding, and vector/row
// persistence, with idempotent resume and bounded concurrency. The polling
// worker pool around it is grounded directly on the teacher's
// pkg/queue/pool.go and pkg/queue/worker.go (claim-next, poll-interval
// sleep when idle, graceful drain on Stop); jobs run on the pool's context
// with no per-job timeout.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/audit"
	"github.com/analystcopilot/core/pkg/chunker"
	"github.com/analystcopilot/core/pkg/embedding"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/parser"
	"github.com/analystcopilot/core/pkg/pii"
	"github.com/analystcopilot/core/pkg/store"
	"github.com/analystcopilot/core/pkg/vectorindex"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config tunes the coordinator's concurrency and chunking defaults.
type Config struct {
	ChunkConfig      chunker.Config
	PIIMode          pii.Mode
	EmbedConcurrency int // workers draining the chunk pipeline per job
	EmbedBatchSize   int // texts per embedding request
	ChunkBuffer      int // bounded channel size between parse and embed stages
}

// DefaultConfig returns the coordinator defaults named in §4.4/§5.
func DefaultConfig() Config {
	return Config{
		ChunkConfig:      chunker.DefaultConfig(),
		PIIMode:          pii.ModeRedact,
		EmbedConcurrency: 4,
		EmbedBatchSize:   16,
		ChunkBuffer:      64,
	}
}

// DetectorFactory builds a tenant-scoped PII detector per job, so the
// pseudonym store (when configured) is keyed by the job's origin.
type DetectorFactory func(job *models.IngestJob) *pii.Detector

// Coordinator drives jobs through the parse -> redact -> chunk -> embed ->
// persist pipeline.
type Coordinator struct {
	cfg       Config
	registry  *parser.Registry
	blobs     BlobStore
	detectors DetectorFactory
	embedder  *embedding.Client
	vectors   *vectorindex.Index
	jobs      *store.IngestJobRepo
	chunks    *store.ChunkRepo
	chain     *audit.Chain
}

// New builds a Coordinator.
func New(cfg Config, registry *parser.Registry, blobs BlobStore, detectors DetectorFactory,
	embedder *embedding.Client, vectors *vectorindex.Index, jobs *store.IngestJobRepo,
	chunks *store.ChunkRepo, chain *audit.Chain) *Coordinator {
	return &Coordinator{
		cfg: cfg, registry: registry, blobs: blobs, detectors: detectors,
		embedder: embedder, vectors: vectors, jobs: jobs, chunks: chunks, chain: chain,
	}
}

// Run executes the per-job algorithm in §4.4 steps 2-5. The caller is
// responsible for step 1 (transactionally claiming the job) — see
// store.IngestJobRepo.ClaimNext, invoked by Pool before Run.
func (c *Coordinator) Run(ctx context.Context, job *models.IngestJob) error {
	log := slog.With("job_id", job.ID, "source_type", job.SourceType)

	reader, err := c.blobs.Open(ctx, job.FilePointer)
	if err != nil {
		return c.fail(ctx, job, fmt.Errorf("opening input: %w", err))
	}
	input, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return c.fail(ctx, job, fmt.Errorf("reading input: %w", err))
	}

	existing, err := c.chunks.ExistingChunkIndexes(ctx, job.ID)
	if err != nil {
		return c.fail(ctx, job, fmt.Errorf("loading resume state: %w", err))
	}
	log.Info("starting job", "already_chunked", len(existing))

	detector := c.detectors(job)
	p := &pipeline{
		coord:    c,
		job:      job,
		detector: detector,
		existing: existing,
		buffer:   make(chan pendingChunk, c.cfg.ChunkBuffer),
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return p.drain(gctx) })
	group.Go(func() error {
		defer close(p.buffer)
		return c.registry.Parse(gctx, job.SourceType, input, job.Metadata, p)
	})

	if err := group.Wait(); err != nil {
		return c.fail(ctx, job, err)
	}

	created := p.created.Load()
	if err := c.jobs.MarkCompleted(ctx, job.ID, int(created)); err != nil {
		return fmt.Errorf("marking job completed: %w", err)
	}
	c.auditJob(ctx, models.ActionIngestComplete, job, models.SeverityLow, nil)
	log.Info("job completed", "chunks_created", created)
	return nil
}

func (c *Coordinator) fail(ctx context.Context, job *models.IngestJob, cause error) error {
	msg := cause.Error()
	if err := c.jobs.MarkFailed(ctx, job.ID, msg); err != nil {
		slog.Error("failed to record job failure", "job_id", job.ID, "error", err)
	}
	c.auditJob(ctx, models.ActionIngestFail, job, models.SeverityHigh, map[string]any{"error": msg})
	if isSecurityViolation(cause) {
		c.auditJob(ctx, models.ActionSecurityViolation, job, models.SeverityHigh, map[string]any{"error": msg})
	}
	return cause
}

// isSecurityViolation reports whether cause is the kind of error §7 treats
// as a security event in its own right (path traversal, XML entity/DOCTYPE
// abuse) rather than an ordinary parse or dependency failure.
func isSecurityViolation(cause error) bool {
	return errors.Is(cause, apperrors.PathTraversal) || errors.Is(cause, apperrors.XMLSecurity)
}

func (c *Coordinator) auditJob(ctx context.Context, action string, job *models.IngestJob, sev models.Severity, details map[string]any) {
	if c.chain == nil {
		return
	}
	uploader := job.Uploader
	jobID := job.ID
	if _, err := c.chain.Append(ctx, audit.Entry{
		Action:       action,
		UserID:       &uploader,
		ResourceType: strPtr("ingest_job"),
		ResourceID:   &jobID,
		Details:      details,
		Severity:     sev,
	}); err != nil {
		slog.Error("failed to append audit entry", "action", action, "job_id", job.ID, "error", err)
	}
}

func strPtr(s string) *string { return &s }

// pendingChunk is one chunker.Chunk awaiting embedding, carrying enough
// provenance to build its KnowledgeChunk row.
type pendingChunk struct {
	doc        parser.ParsedDocument
	chunk      chunker.Chunk
	globalIdx  int
	redacted   bool
	piiTypes   []string
}

// pipeline implements parser.Sink, fanning each ParsedDocument out into
// chunker.Chunk values on a bounded channel that EmbedConcurrency workers
// drain — the cooperative backpressure §4.4/§5 describe: when the channel
// is full, Emit blocks, so parsing pauses until downstream catches up.
type pipeline struct {
	coord    *Coordinator
	job      *models.IngestJob
	detector *pii.Detector
	existing map[int]bool
	buffer   chan pendingChunk
	mu       sync.Mutex
	nextIdx  int
	created  atomic.Int64
}

func (p *pipeline) Emit(ctx context.Context, doc parser.ParsedDocument) error {
	mode := p.coord.cfg.PIIMode
	redactedText, err := p.detector.ProcessContext(ctx, doc.Content, mode)
	if err != nil {
		return fmt.Errorf("pii processing %q: %w", doc.Title, err)
	}
	detections, err := p.detector.Detect(doc.Content)
	if err != nil {
		return fmt.Errorf("pii detect %q: %w", doc.Title, err)
	}
	types := make(map[string]bool, len(detections))
	for _, d := range detections {
		types[string(d.Type)] = true
	}
	piiTypes := make([]string, 0, len(types))
	for t := range types {
		piiTypes = append(piiTypes, t)
	}

	ch := chunker.New(p.coord.cfg.ChunkConfig)
	chunks := ch.Split(redactedText)

	for _, chunk := range chunks {
		p.mu.Lock()
		idx := p.nextIdx
		p.nextIdx++
		p.mu.Unlock()

		if p.existing[idx] {
			continue // resume: already persisted in a prior attempt
		}

		select {
		case p.buffer <- pendingChunk{doc: doc, chunk: chunk, globalIdx: idx, redacted: len(detections) > 0, piiTypes: piiTypes}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *pipeline) Warn(w parser.Warning) {
	slog.Warn("parser warning", "job_id", p.job.ID, "message", w.Message, "context", w.Context)
}

// drain runs EmbedConcurrency workers pulling pendingChunks off the
// buffer, batching them for the embedding provider, upserting into the
// vector index, and persisting the resulting KnowledgeChunk row — §4.4
// steps 3c-3e.
func (p *pipeline) drain(ctx context.Context) error {
	batchSize := p.coord.cfg.EmbedBatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(p.coord.cfg.EmbedConcurrency)

	batch := make([]pendingChunk, 0, batchSize)
	flush := func(items []pendingChunk) {
		items = append([]pendingChunk(nil), items...)
		group.Go(func() error { return p.embedAndPersist(gctx, items) })
	}

	for pc := range p.buffer {
		batch = append(batch, pc)
		if len(batch) >= batchSize {
			flush(batch)
			batch = make([]pendingChunk, 0, batchSize)
		}
	}
	if len(batch) > 0 {
		flush(batch)
	}
	return group.Wait()
}

func (p *pipeline) embedAndPersist(ctx context.Context, items []pendingChunk) error {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.chunk.Text
	}

	vectors, err := p.coord.embedder.Embed(ctx, texts)
	if err != nil {
		// A persistent embedding failure fails these chunks but the
		// document (and the rest of the job) continues, per §4.4 step 3c.
		slog.Error("embedding batch failed, skipping chunks", "job_id", p.job.ID, "count", len(items), "error", err)
		return nil
	}

	rows := make([]*models.KnowledgeChunk, 0, len(items))
	for i, it := range items {
		if i >= len(vectors) || vectors[i] == nil {
			continue
		}
		chunkID := uuid.NewString()
		meta := models.JSONMap{
			"chunk_id":       chunkID,
			"job_id":         p.job.ID,
			"chunk_size":     it.chunk.Metadata.ChunkSize,
			"word_count":     it.chunk.Metadata.WordCount,
			"heading_level":  it.chunk.Metadata.HeadingLevel,
			"heading_title":  it.chunk.Metadata.HeadingTitle,
			"section_start":  it.chunk.Metadata.SectionStart,
			"contains_code":  it.chunk.Metadata.ContainsCode,
			"contains_list":  it.chunk.Metadata.ContainsList,
			"document_title": it.doc.Title,
			"sensitivity":    string(p.job.Sensitivity),
			"origin":         p.job.Origin,
		}
		vectorID := fmt.Sprintf("%s:%d", p.job.ID, it.globalIdx)
		if err := p.coord.vectors.Add(ctx, vectorindex.Point{ID: vectorID, Vector: vectors[i], Metadata: meta}); err != nil {
			slog.Error("vector upsert failed, skipping chunk", "job_id", p.job.ID, "chunk_index", it.globalIdx, "error", err)
			continue
		}

		jobID := p.job.ID
		rows = append(rows, &models.KnowledgeChunk{
			ID:               chunkID,
			JobID:            &jobID,
			SourceType:       p.job.SourceType,
			SourceLocation:   it.doc.ID,
			ChunkText:        it.chunk.Text,
			ChunkIndex:       it.globalIdx,
			Metadata:         meta,
			EmbeddingModel:   embeddingModelName(p.coord.embedder),
			VectorID:         vectorID,
			Sensitive:        it.redacted,
			Redacted:         it.redacted,
			PIITypes:         models.StringSlice(it.piiTypes),
		})
	}

	if len(rows) == 0 {
		return nil
	}
	n, err := p.coord.chunks.InsertBatch(ctx, rows)
	if err != nil {
		return fmt.Errorf("persisting chunk batch: %w", err)
	}
	p.created.Add(int64(n))
	if err := p.coord.jobs.UpdateChunksCreated(ctx, p.job.ID, int(p.created.Load())); err != nil {
		slog.Error("failed to update chunks_created", "job_id", p.job.ID, "error", err)
	}
	return nil
}

// embeddingModelName is read off the client's configured model, since
// Config is unexported; the field exists purely so KnowledgeChunk rows
// record which model produced their embedding.
func embeddingModelName(c *embedding.Client) string {
	if c == nil {
		return ""
	}
	return c.ModelName()
}
