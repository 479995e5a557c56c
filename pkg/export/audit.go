package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/analystcopilot/core/pkg/models"
)

// ExportAuditReport renders audit chain entries as csv, json, or markdown,
// grounded on export_service.py's _export_audit_csv/json/markdown.
func (s *Service) ExportAuditReport(entries []*models.AuditLogEntry, format Format, title string) (*Result, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatCSV:
		data, err = renderAuditCSV(entries)
	case FormatJSON:
		data, err = renderAuditJSON(entries, title)
	case FormatMarkdown:
		data = []byte(renderAuditMarkdown(entries, title))
	default:
		return nil, fmt.Errorf("export: unsupported audit report format %q", format)
	}
	if err != nil {
		return nil, err
	}
	filename := fmt.Sprintf("audit_report_%s.%s", timestamp(), searchExtension(format))
	return s.writeFile(filename, format, len(entries), data)
}

var auditCSVHeader = []string{
	"id", "action", "user_id", "resource_type", "resource_id", "severity", "created_at",
}

func renderAuditCSV(entries []*models.AuditLogEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(auditCSVHeader); err != nil {
		return nil, fmt.Errorf("writing audit csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.Action,
			derefString(e.UserID),
			derefString(e.ResourceType),
			derefString(e.ResourceID),
			string(e.Severity),
			e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing audit csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing audit csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderAuditJSON(entries []*models.AuditLogEntry, title string) ([]byte, error) {
	payload := map[string]any{
		"title":       title,
		"entry_count": len(entries),
		"entries":     entries,
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling audit report: %w", err)
	}
	return out, nil
}

func renderAuditMarkdown(entries []*models.AuditLogEntry, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "%d entr(y/ies)\n\n", len(entries))
	b.WriteString("| ID | Action | User | Severity | Created At |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
			e.ID, e.Action, derefString(e.UserID), e.Severity,
			e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return b.String()
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
