package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/analystcopilot/core/pkg/search"
)

// ExportSearchResults renders results in the requested format and writes
// them under the service's temp directory, mirroring
// export_service.py's export_search_results dispatch.
func (s *Service) ExportSearchResults(results []search.Result, format Format, title string) (*Result, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatCSV:
		data, err = renderSearchCSV(results)
	case FormatJSON:
		data, err = renderSearchJSON(results, title)
	case FormatMarkdown:
		data = []byte(renderSearchMarkdown(results, title))
	case FormatHTML:
		data = []byte(renderSearchHTML(results, title))
	case FormatTXT:
		data = []byte(renderSearchTXT(results, title))
	default:
		return nil, fmt.Errorf("export: unsupported search result format %q", format)
	}
	if err != nil {
		return nil, err
	}
	filename := fmt.Sprintf("search_results_%s.%s", timestamp(), searchExtension(format))
	return s.writeFile(filename, format, len(results), data)
}

func searchExtension(format Format) string {
	switch format {
	case FormatMarkdown:
		return "md"
	default:
		return string(format)
	}
}

var searchCSVHeader = []string{
	"rank", "chunk_id", "source_type", "source_location", "chunk_index",
	"similarity", "sensitive", "redacted", "embedding_model", "created_at", "chunk_text",
}

func renderSearchCSV(results []search.Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(searchCSVHeader); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range results {
		row := []string{
			strconv.Itoa(r.Rank),
			r.Chunk.ID,
			string(r.Chunk.SourceType),
			r.Chunk.SourceLocation,
			strconv.Itoa(r.Chunk.ChunkIndex),
			strconv.FormatFloat(float64(r.Similarity), 'f', 4, 32),
			strconv.FormatBool(r.Chunk.Sensitive),
			strconv.FormatBool(r.Chunk.Redacted),
			r.Chunk.EmbeddingModel,
			r.Chunk.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			r.Chunk.ChunkText,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

type searchResultJSON struct {
	Rank           int     `json:"rank"`
	ChunkID        string  `json:"chunk_id"`
	SourceType     string  `json:"source_type"`
	SourceLocation string  `json:"source_location"`
	Similarity     float32 `json:"similarity"`
	ChunkText      string  `json:"chunk_text"`
	Sensitive      bool    `json:"sensitive"`
	Redacted       bool    `json:"redacted"`
}

func renderSearchJSON(results []search.Result, title string) ([]byte, error) {
	rows := make([]searchResultJSON, 0, len(results))
	for _, r := range results {
		rows = append(rows, searchResultJSON{
			Rank:           r.Rank,
			ChunkID:        r.Chunk.ID,
			SourceType:     string(r.Chunk.SourceType),
			SourceLocation: r.Chunk.SourceLocation,
			Similarity:     r.Similarity,
			ChunkText:      r.Chunk.ChunkText,
			Sensitive:      r.Chunk.Sensitive,
			Redacted:       r.Chunk.Redacted,
		})
	}
	payload := map[string]any{
		"title":        title,
		"result_count": len(rows),
		"results":      rows,
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling search results: %w", err)
	}
	return out, nil
}

func renderSearchMarkdown(results []search.Result, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "%d result(s)\n\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "## %d. %s (similarity %.4f)\n\n", r.Rank, r.Chunk.SourceLocation, r.Similarity)
		fmt.Fprintf(&b, "- source_type: %s\n", r.Chunk.SourceType)
		fmt.Fprintf(&b, "- chunk_id: %s\n", r.Chunk.ID)
		if r.Chunk.Sensitive {
			b.WriteString("- sensitive: true\n")
		}
		b.WriteString("\n")
		b.WriteString(r.Chunk.ChunkText)
		b.WriteString("\n\n---\n\n")
	}
	return b.String()
}

func renderSearchHTML(results []search.Result, title string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title></head><body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n<p>%d result(s)</p>\n", html.EscapeString(title), len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "<div class=\"result\"><h2>%d. %s</h2>\n", r.Rank, html.EscapeString(r.Chunk.SourceLocation))
		fmt.Fprintf(&b, "<p>source_type: %s | similarity: %.4f</p>\n", html.EscapeString(string(r.Chunk.SourceType)), r.Similarity)
		fmt.Fprintf(&b, "<pre>%s</pre></div>\n", html.EscapeString(r.Chunk.ChunkText))
	}
	b.WriteString("</body></html>\n")
	return b.String()
}

func renderSearchTXT(results []search.Result, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%d result(s)\n\n", title, len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "[%d] %s (similarity %.4f)\n", r.Rank, r.Chunk.SourceLocation, r.Similarity)
		b.WriteString(r.Chunk.ChunkText)
		b.WriteString("\n\n")
	}
	return b.String()
}
