package export_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/export"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/search"
)

func newTestService(t *testing.T) *export.Service {
	t.Helper()
	svc, err := export.New(t.TempDir())
	require.NoError(t, err)
	return svc
}

func sampleResults() []search.Result {
	return []search.Result{
		{
			Rank:       1,
			Similarity: 0.91,
			Chunk: &models.KnowledgeChunk{
				ID:             "chunk-1",
				SourceType:     models.SourceTicketCSV,
				SourceLocation: "TICKET-101",
				ChunkText:      "Login fails with a 500 after password reset.",
				ChunkIndex:     0,
				EmbeddingModel: "text-embedding-3-small",
				CreatedAt:      time.Unix(1700000000, 0),
				Metadata: models.JSONMap{
					"summary":     "Login failure after reset",
					"priority":    "High",
					"assignee":    "dsmith",
					"project_key": "SUP",
				},
			},
		},
		{
			Rank:       2,
			Similarity: 0.80,
			Chunk: &models.KnowledgeChunk{
				ID:             "chunk-2",
				SourceType:     models.SourceWikiXML,
				SourceLocation: "Runbook: Auth Service",
				ChunkText:      "Restart the auth-service pod and check token cache TTL.",
				ChunkIndex:     1,
				Sensitive:      true,
				CreatedAt:      time.Unix(1700000100, 0),
			},
		},
	}
}

func TestNewCreatesTempDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	svc, err := export.New(dir)
	require.NoError(t, err)
	require.NotNil(t, svc)
}
