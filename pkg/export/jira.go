package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/analystcopilot/core/pkg/search"
)

// jiraCSVHeader is the fixed column mapping §4.10 requires for Jira-style
// bulk import, grounded on export_service.py's JiraFieldMapping (extended
// with a Components column the Python source's own csv writer omitted but
// its field mapping class otherwise carries).
var jiraCSVHeader = []string{
	"Issue Type", "Summary", "Description", "Priority", "Labels",
	"Components", "Assignee", "Reporter", "Project Key",
}

// ExportJiraCSV renders results as a Jira bulk-import CSV. Summary and
// description are pulled from chunk metadata when present and fall back to
// the source location and a truncated chunk_text, since knowledge chunks
// carry no dedicated ticket schema of their own.
func (s *Service) ExportJiraCSV(results []search.Result, projectKey, issueType, assignee string) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(jiraCSVHeader); err != nil {
		return nil, fmt.Errorf("writing jira csv header: %w", err)
	}
	for _, r := range results {
		row := []string{
			fallback(metaString(r.Chunk.Metadata, "issue_type"), issueType),
			fallback(metaString(r.Chunk.Metadata, "summary"), r.Chunk.SourceLocation),
			fallback(metaString(r.Chunk.Metadata, "description"), truncate(r.Chunk.ChunkText, 1000)),
			metaString(r.Chunk.Metadata, "priority"),
			metaString(r.Chunk.Metadata, "labels"),
			metaString(r.Chunk.Metadata, "components"),
			fallback(metaString(r.Chunk.Metadata, "assignee"), assignee),
			metaString(r.Chunk.Metadata, "reporter"),
			fallback(metaString(r.Chunk.Metadata, "project_key"), projectKey),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing jira csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing jira csv: %w", err)
	}
	filename := fmt.Sprintf("jira_export_%s.csv", timestamp())
	return s.writeFile(filename, FormatCSV, len(results), buf.Bytes())
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func fallback(primary, secondary string) string {
	if primary != "" {
		return primary
	}
	return secondary
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
