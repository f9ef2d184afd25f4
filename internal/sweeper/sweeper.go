package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwygoda/mixpack/internal/workspace"
)

// ArchiveSweeper deletes placed archives past their retention.
type ArchiveSweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)
}

// WorkspaceCleaner deletes working directories left behind by killed runs.
type WorkspaceCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (workspace.CleanupReport, error)
}

// Config holds sweep interval and retention ages.
type Config struct {
	Interval     time.Duration
	ArchiveTTL   time.Duration
	WorkspaceTTL time.Duration
}

// Sweeper periodically enforces retention on archives and workspaces.
type Sweeper struct {
	archives   ArchiveSweeper
	workspaces WorkspaceCleaner
	cfg        Config
	logger     *slog.Logger
}

// New creates a new sweeper.
func New(archives ArchiveSweeper, workspaces WorkspaceCleaner, cfg Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		archives:   archives,
		workspaces: workspaces,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run sweeps once immediately, then every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("sweeper started", "interval", s.cfg.Interval)
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper shutting down")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep of both targets. Errors are logged.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if s.archives != nil && s.cfg.ArchiveTTL > 0 {
		n, err := s.archives.Sweep(ctx, s.cfg.ArchiveTTL)
		if err != nil {
			s.logger.Warn("archive sweep failed", "error", err)
		} else if n > 0 {
			s.logger.Info("expired archives removed", "count", n)
		}
	}

	if ctx.Err() != nil {
		return
	}

	if s.workspaces != nil && s.cfg.WorkspaceTTL > 0 {
		report, err := s.workspaces.Cleanup(ctx, s.cfg.WorkspaceTTL)
		if err != nil {
			s.logger.Warn("workspace cleanup failed", "error", err)
		} else if report.DeletedDirs > 0 {
			s.logger.Info("orphaned workspaces removed", "count", report.DeletedDirs)
		}
	}
}
