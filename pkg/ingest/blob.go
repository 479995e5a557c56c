package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/google/uuid"
)

// BlobStore resolves a job's file_pointer to its raw bytes. The ingestion
// coordinator depends only on this interface, not on a particular upload
// backend, so object storage can be swapped in later without touching the
// pipeline.
type BlobStore interface {
	Open(ctx context.Context, pointer string) (io.ReadCloser, error)
}

// BlobWriter is the upload-side counterpart of BlobStore. It's a separate,
// narrower interface because only the HTTP upload handler writes blobs; the
// coordinator never does.
type BlobWriter interface {
	Save(ctx context.Context, name string, r io.Reader) (pointer string, size int64, err error)
}

// LocalBlobStore resolves file_pointer as a path beneath a root directory,
// the upload backend for a single-node deployment.
type LocalBlobStore struct {
	Root string
}

// NewLocalBlobStore builds a LocalBlobStore rooted at root.
func NewLocalBlobStore(root string) *LocalBlobStore { return &LocalBlobStore{Root: root} }

// Open rejects any pointer that would resolve outside Root, the same
// traversal guard pkg/parser/zip.go applies to zip entries.
func (s *LocalBlobStore) Open(ctx context.Context, pointer string) (io.ReadCloser, error) {
	clean := filepath.Clean(pointer)
	full := filepath.Join(s.Root, clean)
	rel, err := filepath.Rel(s.Root, full)
	if err != nil || rel == ".." || len(rel) >= 2 && rel[:2] == ".." {
		return nil, apperrors.New(apperrors.KindPathTraversal, "blob pointer escapes storage root: "+pointer)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "opening blob", err)
	}
	return f, nil
}

// Save writes r to a fresh file under Root named after a generated UUID
// plus name's extension, returning the pointer Open later resolves.
func (s *LocalBlobStore) Save(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return "", 0, apperrors.Wrap(apperrors.KindDependency, "creating blob root", err)
	}
	pointer := uuid.NewString() + filepath.Ext(name)
	full := filepath.Join(s.Root, pointer)

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, apperrors.Wrap(apperrors.KindDependency, "creating blob", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return "", 0, apperrors.Wrap(apperrors.KindDependency, "writing blob", err)
	}
	return pointer, n, nil
}
