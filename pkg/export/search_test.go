package export_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/export"
)

func TestExportSearchResultsCSV(t *testing.T) {
	svc := newTestService(t)
	result, err := svc.ExportSearchResults(sampleResults(), export.FormatCSV, "weekly digest")
	require.NoError(t, err)
	require.Equal(t, 2, result.RecordCount)
	require.Equal(t, export.FormatCSV, result.Format)

	data, err := os.ReadFile(result.FilePath)
	require.NoError(t, err)
	require.Contains(t, string(data), "rank,chunk_id,source_type")
	require.Contains(t, string(data), "chunk-1")
	require.Contains(t, string(data), "chunk-2")
}

func TestExportSearchResultsJSON(t *testing.T) {
	svc := newTestService(t)
	result, err := svc.ExportSearchResults(sampleResults(), export.FormatJSON, "weekly digest")
	require.NoError(t, err)
	data, err := os.ReadFile(result.FilePath)
	require.NoError(t, err)
	require.Contains(t, string(data), `"result_count": 2`)
}

func TestExportSearchResultsMarkdown(t *testing.T) {
	svc := newTestService(t)
	result, err := svc.ExportSearchResults(sampleResults(), export.FormatMarkdown, "weekly digest")
	require.NoError(t, err)
	data, err := os.ReadFile(result.FilePath)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "# weekly digest"))
}

func TestExportSearchResultsHTMLEscapesContent(t *testing.T) {
	svc := newTestService(t)
	results := sampleResults()
	results[0].Chunk.ChunkText = "<script>alert(1)</script>"
	result, err := svc.ExportSearchResults(results, export.FormatHTML, "weekly digest")
	require.NoError(t, err)
	data, err := os.ReadFile(result.FilePath)
	require.NoError(t, err)
	require.NotContains(t, string(data), "<script>alert(1)</script>")
	require.Contains(t, string(data), "&lt;script&gt;")
}

func TestExportSearchResultsTXT(t *testing.T) {
	svc := newTestService(t)
	result, err := svc.ExportSearchResults(sampleResults(), export.FormatTXT, "weekly digest")
	require.NoError(t, err)
	data, err := os.ReadFile(result.FilePath)
	require.NoError(t, err)
	require.Contains(t, string(data), "weekly digest")
}

func TestExportSearchResultsRejectsUnsupportedFormat(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ExportSearchResults(sampleResults(), export.FormatZip, "weekly digest")
	require.Error(t, err)
}
