// Package search implements the semantic search operations in §4.6:
// embed a query, call the vector index, hydrate hits with their stored
// KnowledgeChunk rows, and drop anything the caller's identity isn't
// permitted to view.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/embedding"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/vectorindex"
)

// ChunkStore is the subset of store.ChunkRepo the search service needs.
type ChunkStore interface {
	Get(ctx context.Context, id string) (*models.KnowledgeChunk, error)
	ListByIDs(ctx context.Context, ids []string) ([]*models.KnowledgeChunk, error)
	DeleteByJob(ctx context.Context, jobID string) (int64, error)
}

// Result is one ranked, access-checked hit.
type Result struct {
	Chunk      *models.KnowledgeChunk
	Similarity float32
	Rank       int
}

// Service answers search queries against the vector index, scoped by the
// caller's sensitivity clearance.
type Service struct {
	embedder *embedding.Client
	vectors  *vectorindex.Index
	chunks   ChunkStore
}

// New builds a Service.
func New(embedder *embedding.Client, vectors *vectorindex.Index, chunks ChunkStore) *Service {
	return &Service{embedder: embedder, vectors: vectors, chunks: chunks}
}

// Search embeds query_text, searches the vector index for its k nearest
// neighbors above threshold, hydrates each hit with its KnowledgeChunk
// row, and drops any hit the caller's identity may not view, re-ranking
// the survivors in order.
func (s *Service) Search(ctx context.Context, queryText string, k int, threshold float32, filter map[string]any, identity models.Identity) ([]Result, error) {
	vecs, err := s.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) == 0 || vecs[0] == nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "search: empty query embedding", nil)
	}
	hits, err := s.vectors.Search(ctx, vecs[0], k, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return s.hydrateAndFilter(ctx, hits, threshold, identity)
}

// SimilarTo re-embeds the stored chunk_text of chunkID (the vector index
// doesn't expose stored embeddings for reuse) and searches from there,
// excluding the source chunk itself from the results.
func (s *Service) SimilarTo(ctx context.Context, chunkID string, k int, threshold float32, identity models.Identity) ([]Result, error) {
	source, err := s.chunks.Get(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if !identity.CanView(source.SensitivityTier()) {
		return nil, apperrors.Forbidden
	}
	vecs, err := s.embedder.Embed(ctx, []string{source.ChunkText})
	if err != nil {
		return nil, fmt.Errorf("embedding source chunk: %w", err)
	}
	hits, err := s.vectors.Search(ctx, vecs[0], k+1, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	filtered := hits[:0]
	for _, h := range hits {
		if h.ID == source.VectorID {
			continue
		}
		filtered = append(filtered, h)
	}
	return s.hydrateAndFilter(ctx, filtered, threshold, identity)
}

func (s *Service) hydrateAndFilter(ctx context.Context, hits []vectorindex.SearchResult, threshold float32, identity models.Identity) ([]Result, error) {
	ids := make([]string, 0, len(hits))
	byVectorID := make(map[string]vectorindex.SearchResult, len(hits))
	for _, h := range hits {
		if h.Score < threshold {
			continue
		}
		id, _ := h.Metadata["chunk_id"].(string)
		if id == "" {
			continue
		}
		ids = append(ids, id)
		byVectorID[id] = h
	}
	if len(ids) == 0 {
		return nil, nil
	}

	chunks, err := s.chunks.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrating chunks: %w", err)
	}

	results := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		if !identity.CanView(c.SensitivityTier()) {
			continue
		}
		hit := byVectorID[c.ID]
		results = append(results, Result{Chunk: c, Similarity: hit.Score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// Suggest returns document titles (drawn from chunk metadata) whose
// prefix matches, for search-box autocomplete. It's a best-effort scan
// over the supplied candidate pool rather than a dedicated index, since
// §4.6 doesn't specify a backing store for titles.
func Suggest(candidates []string, prefix string, k int) []string {
	prefix = strings.ToLower(prefix)
	seen := make(map[string]bool)
	var out []string
	for _, c := range candidates {
		if len(out) >= k {
			break
		}
		if !strings.HasPrefix(strings.ToLower(c), prefix) || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// DeleteBy cascades a delete of one ingest job's chunks to both the relational
// store and the vector index, per §4.6's delete_by operation.
func (s *Service) DeleteBy(ctx context.Context, jobID string) (int64, error) {
	if err := s.vectors.DeleteByFilter(ctx, map[string]any{"job_id": jobID}); err != nil {
		return 0, fmt.Errorf("deleting vectors: %w", err)
	}
	return s.chunks.DeleteByJob(ctx, jobID)
}
