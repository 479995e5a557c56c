// Package export renders search results and audit reports into the formats
// named in §4.10: csv, json, markdown, html, and zip packages of any
// combination of the above. It is grounded directly on
// original_source/acp-ingest/app/services/export_service.py — the same
// format set, the same OS-temp-directory-plus-sweep lifecycle for
// generated files, and the same fixed Jira CSV column mapping — rewritten
// against this domain's search.Result/models.AuditLogEntry types instead of
// that service's SearchResult/AuditLog schemas.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Format is one of the renderable export formats.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatTXT      Format = "txt"
	FormatZip      Format = "zip"
)

// Result describes one file the service wrote under its temp directory.
type Result struct {
	FilePath    string
	Filename    string
	Format      Format
	Size        int64
	RecordCount int
	CreatedAt   time.Time
}

// Service writes export files under a dedicated temp directory and sweeps
// them on a schedule. The zero value is not usable; construct with New.
type Service struct {
	tempDir string
}

// New builds a Service rooted at dir, creating it if necessary. An empty
// dir defaults to os.TempDir()/analystcopilot-exports, mirroring the
// Python service's `Path(tempfile.gettempdir()) / "acp_exports"`.
func New(dir string) (*Service, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "analystcopilot-exports")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export temp dir: %w", err)
	}
	return &Service{tempDir: dir}, nil
}

// writeFile writes data to a new file under the service's temp directory
// and builds the Result describing it.
func (s *Service) writeFile(filename string, format Format, recordCount int, data []byte) (*Result, error) {
	path := filepath.Join(s.tempDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing export file %s: %w", filename, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat export file %s: %w", filename, err)
	}
	return &Result{
		FilePath:    path,
		Filename:    filename,
		Format:      format,
		Size:        info.Size(),
		RecordCount: recordCount,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// timestamp matches the Python service's `%Y%m%d_%H%M%S` filename component.
func timestamp() string {
	return time.Now().UTC().Format("20060102_150405")
}
