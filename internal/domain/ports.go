package domain

import "context"

// JobSource is the driven port for reading jobs and playlists from the tracker.
type JobSource interface {
	FetchJob(ctx context.Context, jobID string) (*Job, error)
	FetchPlaylist(ctx context.Context, playlistID string) (*Playlist, error)
}

// StatusReporter is the driven port for pushing job updates to the tracker.
// Implementations are best-effort and never fail the caller.
type StatusReporter interface {
	ReportProgress(ctx context.Context, jobID string, status JobStatus, current, total int, currentTrack *string, errMsg string)
	ReportCompletion(ctx context.Context, jobID, downloadURL string, failedTracks []string)
}

// Outcome is the result of one acquisition attempt.
type Outcome struct {
	Index    int
	Label    string
	Success  bool
	TimedOut bool
	// Files are slash-separated paths of the files produced, relative to the
	// staging directory.
	Files []string
	Err   error
}

// Acquirer is the driven port for downloading a single track into dir.
// Acquire never fails the caller; failures are reported in the Outcome.
type Acquirer interface {
	Acquire(ctx context.Context, item TrackItem, dir string) Outcome
}

// Archive describes a built archive file.
type Archive struct {
	Path   string
	Files  []string
	Size   int64
	Digest string
}

// Archiver is the driven port for packaging acquired files.
type Archiver interface {
	Build(ctx context.Context, tracksDir, outDir, playlistName string) (*Archive, error)
}

// ArchiveStore hands a built archive off to its well-known location.
type ArchiveStore interface {
	Place(jobID, archivePath string) (string, error)
}

// Workspace is a run-scoped working directory.
type Workspace struct {
	ID        string
	Dir       string
	TracksDir string
}

// WorkspaceManager owns working directory lifecycle.
type WorkspaceManager interface {
	Create(ctx context.Context, runID string) (Workspace, error)
	// Stage creates an empty staging directory for one acquisition.
	Stage(ws Workspace, index int) (string, error)
	// Commit moves files from a staging directory into ws.TracksDir and
	// returns their final names.
	Commit(ws Workspace, stagingDir string, files []string) ([]string, error)
	Discard(stagingDir string) error
	Remove(ws Workspace) error
}
