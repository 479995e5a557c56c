package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
)

// ZipParser implements the zip contract from §4.1: extract into memory
// (never to an on-disk temp tree under the upload's control, to keep a
// path-traversal entry from ever touching the filesystem), reject any entry
// whose name escapes its extraction root, and recurse each remaining entry
// back through the Registry by detected source type.
type ZipParser struct {
	registry *Registry
}

const maxZipEntries = 5000
const maxZipEntrySize = 100 * 1024 * 1024 // 100MB per entry

func (p *ZipParser) Parse(ctx context.Context, input []byte, metadata models.JSONMap, sink Sink) error {
	r, err := zip.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidationFailed, "zip: invalid archive", err)
	}
	if len(r.File) > maxZipEntries {
		return apperrors.New(apperrors.KindValidationFailed, fmt.Sprintf("zip: too many entries (%d)", len(r.File)))
	}

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if err := guardZipEntryName(f.Name); err != nil {
			return err
		}
		if f.UncompressedSize64 > maxZipEntrySize {
			sink.Warn(Warning{Message: fmt.Sprintf("zip entry %q exceeds the per-entry size limit, skipped", f.Name), Context: "zip"})
			continue
		}
		base := filepath.Base(f.Name)
		if SkipDir(base) {
			continue
		}
		if skipInPath(f.Name) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			sink.Warn(Warning{Message: fmt.Sprintf("zip entry %q failed to open: %v", f.Name, err), Context: "zip"})
			continue
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxZipEntrySize+1))
		rc.Close()
		if err != nil {
			sink.Warn(Warning{Message: fmt.Sprintf("zip entry %q failed to read: %v", f.Name, err), Context: "zip"})
			continue
		}

		sourceType := Detect(f.Name, "")
		entryMeta := cloneMeta(metadata, models.JSONMap{"path": f.Name, "archive_entry": true})
		if sourceType == models.SourceUnknown {
			sourceType = models.SourceCode
		}
		if err := p.registry.Parse(ctx, sourceType, content, entryMeta, sink); err != nil {
			sink.Warn(Warning{Message: fmt.Sprintf("zip entry %q failed to parse: %v", f.Name, err), Context: "zip"})
		}
	}
	return nil
}

// guardZipEntryName rejects absolute paths and ".." traversal components,
// the classic zip-slip vector.
func guardZipEntryName(name string) error {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) {
		return apperrors.New(apperrors.KindPathTraversal, fmt.Sprintf("zip: entry %q has an absolute path", name))
	}
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(clean, "/../") {
		return apperrors.New(apperrors.KindPathTraversal, fmt.Sprintf("zip: entry %q escapes the archive root", name))
	}
	return nil
}

func skipInPath(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if SkipDir(part) {
			return true
		}
	}
	return false
}
