package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nvandessel/orgsim/internal/logging"
	"github.com/nvandessel/orgsim/internal/models"
)

const (
	filePrefix = "orgsim-"

	// fileTimeFormat is fixed width so names sort chronologically.
	fileTimeFormat = "20060102T150405.000000Z"
)

// FileName returns the export file name for a run finished at t.
func FileName(t time.Time) string {
	return filePrefix + t.UTC().Format(fileTimeFormat) + ".csv"
}

// FileSink writes each finished run to Dir as a CSV file. Files are written
// to a temporary name and renamed, so a partial file is never visible.
type FileSink struct {
	Dir string

	// Retention, when set, prunes Dir after every successful write.
	Retention *Retention

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger

	mu   sync.Mutex
	last string
}

// Export encodes records and writes them atomically.
func (s *FileSink) Export(ctx context.Context, records []models.TickRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := EncodeCSV(&buf, records); err != nil {
		return err
	}

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	finished := now()
	path := filepath.Join(s.Dir, FileName(finished))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing export temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming export file: %w", err)
	}

	s.mu.Lock()
	s.last = path
	s.mu.Unlock()

	logger := s.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger.Info("export written", "path", path, "records", len(records),
		"size", humanize.Bytes(uint64(buf.Len())))

	if s.Retention != nil {
		deleted, err := s.Retention.Prune(s.Dir, finished)
		if err != nil {
			// The export itself succeeded.
			logger.Warn("export retention failed", "error", err)
		} else if len(deleted) > 0 {
			logger.Debug("export retention", "deleted", len(deleted))
		}
	}
	return nil
}

// LastPath returns the path of the most recent successful export.
func (s *FileSink) LastPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
