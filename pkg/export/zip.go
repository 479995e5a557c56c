package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// manifestEntry describes one file bundled into a package, written as
// manifest.json alongside the files themselves, grounded on
// export_service.py's create_export_package.
type manifestEntry struct {
	Filename    string    `json:"filename"`
	Format      Format    `json:"format"`
	Size        int64     `json:"size"`
	RecordCount int       `json:"record_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreatePackage bundles a set of previously written exports plus a
// manifest.json enumerating them into a single zip file.
func (s *Service) CreatePackage(exports []*Result, packageName string) (*Result, error) {
	if len(exports) == 0 {
		return nil, fmt.Errorf("export: no files to package")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	manifest := make([]manifestEntry, 0, len(exports))
	for _, e := range exports {
		data, err := os.ReadFile(e.FilePath)
		if err != nil {
			return nil, fmt.Errorf("reading export file %s for packaging: %w", e.Filename, err)
		}
		w, err := zw.Create(e.Filename)
		if err != nil {
			return nil, fmt.Errorf("adding %s to package: %w", e.Filename, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("writing %s into package: %w", e.Filename, err)
		}
		manifest = append(manifest, manifestEntry{
			Filename:    e.Filename,
			Format:      e.Format,
			Size:        e.Size,
			RecordCount: e.RecordCount,
			CreatedAt:   e.CreatedAt,
		})
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest: %w", err)
	}
	mw, err := zw.Create("manifest.json")
	if err != nil {
		return nil, fmt.Errorf("adding manifest to package: %w", err)
	}
	if _, err := mw.Write(manifestJSON); err != nil {
		return nil, fmt.Errorf("writing manifest into package: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing package: %w", err)
	}

	if packageName == "" {
		packageName = fmt.Sprintf("export_package_%s", timestamp())
	}
	filename := packageName + ".zip"
	return s.writeFile(filename, FormatZip, len(exports), buf.Bytes())
}
