package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nvandessel/orgsim/internal/logging"
	"github.com/nvandessel/orgsim/internal/models"
)

// ArchiveSink saves every finished run into an Archive.
type ArchiveSink struct {
	Archive *Archive
	Info    RunInfo

	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger

	mu     sync.Mutex
	lastID string
}

// Export archives records as a new run.
func (s *ArchiveSink) Export(ctx context.Context, records []models.TickRecord) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	id, err := s.Archive.SaveRun(ctx, s.Info, records, now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lastID = id
	s.mu.Unlock()

	logger := s.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger.Info("run archived", "run_id", id, "records", len(records))
	return nil
}

// LastID returns the ID of the most recently archived run.
func (s *ArchiveSink) LastID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}
