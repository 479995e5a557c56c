package export_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/export"
	"github.com/analystcopilot/core/pkg/models"
)

func sampleAuditEntries() []*models.AuditLogEntry {
	user := "u-1"
	return []*models.AuditLogEntry{
		{ID: 1, Action: models.ActionIngestComplete, UserID: &user, Severity: models.SeverityLow, CreatedAt: time.Unix(1700000000, 0)},
		{ID: 2, Action: models.ActionSecurityViolation, UserID: &user, Severity: models.SeverityHigh, CreatedAt: time.Unix(1700000100, 0)},
	}
}

func TestExportAuditReportCSV(t *testing.T) {
	svc := newTestService(t)
	result, err := svc.ExportAuditReport(sampleAuditEntries(), export.FormatCSV, "audit report")
	require.NoError(t, err)
	require.Equal(t, 2, result.RecordCount)

	data, err := os.ReadFile(result.FilePath)
	require.NoError(t, err)
	require.Contains(t, string(data), "security.violation")
}

func TestExportAuditReportMarkdownTable(t *testing.T) {
	svc := newTestService(t)
	result, err := svc.ExportAuditReport(sampleAuditEntries(), export.FormatMarkdown, "audit report")
	require.NoError(t, err)
	data, err := os.ReadFile(result.FilePath)
	require.NoError(t, err)
	require.Contains(t, string(data), "| ID | Action | User | Severity | Created At |")
}

func TestExportAuditReportRejectsHTML(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ExportAuditReport(sampleAuditEntries(), export.FormatHTML, "audit report")
	require.Error(t, err)
}
