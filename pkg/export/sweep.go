package export

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Sweep deletes files under the service's temp directory older than maxAge
// and returns the count removed, grounded on export_service.py's
// cleanup_old_exports(max_age_hours=24).
func (s *Service) Sweep(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.tempDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			slog.Error("export sweep: failed to remove stale file", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// RunSweeper runs Sweep on a fixed interval until ctx is cancelled, in the
// same ticker shape as pkg/ingest/pool.go's runOrphanRecovery.
func (s *Service) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(maxAge)
			if err != nil {
				slog.Error("export sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("export sweep removed stale files", "count", removed)
			}
		}
	}
}
