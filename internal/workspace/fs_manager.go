package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cwygoda/mixpack/internal/domain"
)

const (
	tracksDirName  = "tracks"
	stagingDirName = "staging"
)

// CleanupReport summarizes a cleanup run.
type CleanupReport struct {
	DeletedDirs int
}

// FSManager manages run-scoped working directories on local disk.
type FSManager struct {
	baseDir string
	now     func() time.Time
	// mu serializes commits so name de-duplication in tracks/ is race free.
	mu sync.Mutex

	activeMu sync.Mutex
	// active holds IDs of workspaces created and not yet removed by this process.
	active map[string]struct{}
}

var _ domain.WorkspaceManager = (*FSManager)(nil)

// NewFSManager creates a filesystem-backed workspace manager rooted at baseDir.
func NewFSManager(baseDir string) (*FSManager, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace base directory is empty")
	}

	return &FSManager{
		baseDir: filepath.Clean(trimmed),
		now:     time.Now,
		active:  make(map[string]struct{}),
	}, nil
}

// BaseDir returns the root all workspaces live under.
func (m *FSManager) BaseDir() string {
	return m.baseDir
}

// Create initializes a workspace directory with an empty tracks/ subdirectory.
func (m *FSManager) Create(ctx context.Context, runID string) (domain.Workspace, error) {
	if err := ctx.Err(); err != nil {
		return domain.Workspace{}, err
	}
	if err := ValidateID(runID); err != nil {
		return domain.Workspace{}, err
	}

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return domain.Workspace{}, fmt.Errorf("create workspace base directory: %w", err)
	}

	dir := filepath.Join(m.baseDir, runID)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return domain.Workspace{}, fmt.Errorf("create workspace %q: %w", runID, err)
	}

	tracks := filepath.Join(dir, tracksDirName)
	if err := os.Mkdir(tracks, 0o755); err != nil {
		_ = os.RemoveAll(dir)
		return domain.Workspace{}, fmt.Errorf("create tracks directory: %w", err)
	}

	m.activeMu.Lock()
	m.active[runID] = struct{}{}
	m.activeMu.Unlock()

	return domain.Workspace{ID: runID, Dir: dir, TracksDir: tracks}, nil
}

func (m *FSManager) isActive(id string) bool {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	_, ok := m.active[id]
	return ok
}

// Stage creates an empty staging directory for acquisition index.
func (m *FSManager) Stage(ws domain.Workspace, index int) (string, error) {
	dir := filepath.Join(ws.Dir, stagingDirName, strconv.Itoa(index))
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("reset staging directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	return dir, nil
}

// Commit moves files from stagingDir into ws.TracksDir. Files are given as
// slash-separated paths relative to stagingDir and keep that layout below
// tracks/. Existing paths get a numeric suffix. On error every file already
// moved is removed again.
func (m *FSManager) Commit(ws domain.Workspace, stagingDir string, files []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var moved []string
	for _, name := range files {
		rel := filepath.FromSlash(name)
		if !filepath.IsLocal(rel) {
			m.rollback(ws, moved)
			return nil, fmt.Errorf("file path %q escapes the staging directory", name)
		}
		src := filepath.Join(stagingDir, rel)
		if err := os.MkdirAll(filepath.Join(ws.TracksDir, filepath.Dir(rel)), 0o755); err != nil {
			m.rollback(ws, moved)
			return nil, fmt.Errorf("create directory for %s: %w", name, err)
		}
		dstRel := uniqueName(ws.TracksDir, rel)
		dst := filepath.Join(ws.TracksDir, dstRel)

		if err := moveFile(src, dst); err != nil {
			m.rollback(ws, moved)
			return nil, fmt.Errorf("move %s: %w", name, err)
		}
		moved = append(moved, filepath.ToSlash(dstRel))
	}
	return moved, nil
}

func (m *FSManager) rollback(ws domain.Workspace, names []string) {
	for _, name := range names {
		_ = os.Remove(filepath.Join(ws.TracksDir, filepath.FromSlash(name)))
	}
}

// Discard removes a staging directory and anything left in it.
func (m *FSManager) Discard(stagingDir string) error {
	return os.RemoveAll(stagingDir)
}

// Remove deletes the workspace and everything in it.
func (m *FSManager) Remove(ws domain.Workspace) error {
	if ws.Dir == "" {
		return nil
	}
	if filepath.Dir(filepath.Clean(ws.Dir)) != m.baseDir {
		return fmt.Errorf("workspace %q is outside %q", ws.Dir, m.baseDir)
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		return err
	}
	m.activeMu.Lock()
	delete(m.active, filepath.Base(ws.Dir))
	m.activeMu.Unlock()
	return nil
}

// Cleanup removes workspace directories older than olderThan based on
// directory modification time. Workspaces of runs still in flight in this
// process are never removed.
func (m *FSManager) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error) {
	if olderThan <= 0 {
		return CleanupReport{}, fmt.Errorf("olderThan must be positive")
	}
	cutoff := m.now().Add(-olderThan)
	return m.sweep(ctx, func(info os.FileInfo) bool {
		return !info.ModTime().After(cutoff)
	})
}

// Purge removes every workspace not held by a run of this process. Called at
// start-up it clears what a previous, terminated process left behind.
func (m *FSManager) Purge(ctx context.Context) (CleanupReport, error) {
	return m.sweep(ctx, func(os.FileInfo) bool { return true })
}

func (m *FSManager) sweep(ctx context.Context, expired func(os.FileInfo) bool) (CleanupReport, error) {
	if err := ctx.Err(); err != nil {
		return CleanupReport{}, err
	}

	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return CleanupReport{}, nil
	}
	if err != nil {
		return CleanupReport{}, fmt.Errorf("read workspace base directory: %w", err)
	}

	report := CleanupReport{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() || m.isActive(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return report, fmt.Errorf("read workspace entry info %q: %w", entry.Name(), err)
		}
		if !expired(info) {
			continue
		}

		path := filepath.Join(m.baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return report, fmt.Errorf("remove workspace %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
	}

	return report, nil
}

// ValidateID rejects identifiers that are unsafe as a single path element.
func ValidateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("id is empty")
	}
	if trimmed != id {
		return fmt.Errorf("id %q must not have surrounding whitespace", id)
	}
	if trimmed == "." || trimmed == ".." {
		return fmt.Errorf("id %q is invalid", id)
	}
	if strings.ContainsAny(trimmed, `/\`) {
		return fmt.Errorf("id %q must not contain path separators", id)
	}
	if filepath.Clean(trimmed) != trimmed {
		return fmt.Errorf("id %q is invalid", id)
	}
	return nil
}

// uniqueName returns the relative path name, or "stem (n).ext" in the same
// directory if name already exists below dir.
func uniqueName(dir, name string) string {
	if _, err := os.Lstat(filepath.Join(dir, name)); os.IsNotExist(err) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Lstat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
	}
}

// moveFile renames src to dst, copying across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
