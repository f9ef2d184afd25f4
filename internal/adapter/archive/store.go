package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwygoda/mixpack/internal/domain"
	"github.com/cwygoda/mixpack/internal/workspace"
)

// Store is the well-known directory placed archives are served from.
type Store struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

var _ domain.ArchiveStore = (*Store)(nil)

// NewStore creates a Store rooted at dir.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("archive directory is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: filepath.Clean(trimmed), now: time.Now, logger: logger}, nil
}

// Path returns the placed archive path for jobID.
func (s *Store) Path(jobID string) (string, error) {
	if err := workspace.ValidateID(jobID); err != nil {
		return "", fmt.Errorf("invalid job id: %w", err)
	}
	return filepath.Join(s.dir, jobID+".zip"), nil
}

// Place moves archivePath to the job's well-known path, replacing any
// archive placed earlier for the same job.
func (s *Store) Place(jobID, archivePath string) (string, error) {
	dst, err := s.Path(jobID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	if err := os.Rename(archivePath, dst); err != nil {
		// Cross-device fallback: copy next to dst, then rename over it.
		tmp, err := s.copyBeside(archivePath, dst)
		if err != nil {
			return "", err
		}
		if err := os.Rename(tmp, dst); err != nil {
			_ = os.Remove(tmp)
			return "", fmt.Errorf("replace archive: %w", err)
		}
		_ = os.Remove(archivePath)
	}

	s.logger.Info("archive placed", "job_id", jobID, "path", dst)
	return dst, nil
}

func (s *Store) copyBeside(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), ".placing-*.zip")
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("copy archive: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("close archive: %w", err)
	}
	return out.Name(), nil
}

// Sweep removes placed archives older than olderThan and returns how many
// were deleted.
func (s *Store) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read archive directory: %w", err)
	}

	cutoff := s.now().Add(-olderThan)
	var deleted int
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if !entry.Type().IsRegular() || filepath.Ext(entry.Name()) != ".zip" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return deleted, fmt.Errorf("remove archive %q: %w", entry.Name(), err)
		}
		deleted++
	}
	return deleted, nil
}
