package parser_test

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/parser"
)

type zipEntry struct {
	name    string
	content string
}

func buildZip(t *testing.T, entries []zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e.name)
		require.NoError(t, err)
		_, err = f.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestZipParserRecursesRegularEntries(t *testing.T) {
	archive := buildZip(t, []zipEntry{
		{name: "notes.md", content: "# Title\n\nbody text"},
	})

	registry := parser.NewRegistry()
	sink := &collectingSink{}
	require.NoError(t, registry.Parse(context.Background(), "zip", archive, nil, sink))
	require.NotEmpty(t, sink.docs)
}

func TestZipParserAbortsOnPathTraversalEntry(t *testing.T) {
	// The traversal entry comes first, so a correct fail-fast implementation
	// never even reaches safe.md.
	archive := buildZip(t, []zipEntry{
		{name: "../../etc/passwd", content: "root:x:0:0"},
		{name: "safe.md", content: "fine"},
	})

	registry := parser.NewRegistry()
	sink := &collectingSink{}
	err := registry.Parse(context.Background(), "zip", archive, nil, sink)
	require.Error(t, err)
	require.ErrorIs(t, err, apperrors.PathTraversal)
	require.Empty(t, sink.docs, "extraction must abort before any entry is parsed once a traversal attempt is seen")
}
