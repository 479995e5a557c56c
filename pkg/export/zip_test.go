package export_test

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/export"
)

func TestCreatePackageIncludesManifest(t *testing.T) {
	svc := newTestService(t)
	csvResult, err := svc.ExportSearchResults(sampleResults(), export.FormatCSV, "weekly digest")
	require.NoError(t, err)
	jsonResult, err := svc.ExportSearchResults(sampleResults(), export.FormatJSON, "weekly digest")
	require.NoError(t, err)

	pkg, err := svc.CreatePackage([]*export.Result{csvResult, jsonResult}, "weekly_digest")
	require.NoError(t, err)
	require.Equal(t, export.FormatZip, pkg.Format)
	require.Equal(t, 2, pkg.RecordCount)

	data, err := os.ReadFile(pkg.FilePath)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := make(map[string]bool)
	var manifestBody []byte
	for _, f := range zr.File {
		names[f.Name] = true
		if f.Name == "manifest.json" {
			rc, err := f.Open()
			require.NoError(t, err)
			manifestBody, err = io.ReadAll(rc)
			require.NoError(t, err)
			rc.Close()
		}
	}
	require.True(t, names["manifest.json"])
	require.True(t, names[csvResult.Filename])
	require.True(t, names[jsonResult.Filename])
	require.Contains(t, string(manifestBody), csvResult.Filename)
	require.Contains(t, string(manifestBody), `"record_count"`)
}

func TestCreatePackageRejectsEmptyInput(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreatePackage(nil, "empty")
	require.Error(t, err)
}
