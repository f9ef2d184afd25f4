package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultDownloadURLTemplate is where the tracker serves placed archives.
const DefaultDownloadURLTemplate = "/api/download/file/{jobId}"

// PipelineOptions tunes a Pipeline.
type PipelineOptions struct {
	// DownloadURLTemplate is expanded with {jobId}.
	DownloadURLTemplate string
	// MaxConcurrent bounds parallel acquisitions. Values below 1 mean 1.
	MaxConcurrent int
}

// Deps are the driven ports a Pipeline needs.
type Deps struct {
	Source     JobSource
	Reporter   StatusReporter
	Acquirer   Acquirer
	Archiver   Archiver
	Store      ArchiveStore
	Workspaces WorkspaceManager
	Logger     *slog.Logger
}

// Pipeline turns a job into a placed archive. It holds no per-run state, so
// a single Pipeline serves concurrent runs for different jobs.
type Pipeline struct {
	deps     Deps
	opts     PipelineOptions
	logger   *slog.Logger
	newRunID func() string
}

// NewPipeline creates a Pipeline.
func NewPipeline(deps Deps, opts PipelineOptions) *Pipeline {
	if opts.DownloadURLTemplate == "" {
		opts.DownloadURLTemplate = DefaultDownloadURLTemplate
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		deps:     deps,
		opts:     opts,
		logger:   logger,
		newRunID: newRunID,
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// DownloadURL returns the externally reachable location for jobID's archive.
func (p *Pipeline) DownloadURL(jobID string) string {
	return strings.ReplaceAll(p.opts.DownloadURLTemplate, "{jobId}", jobID)
}

// Run executes the pipeline for jobID. On failure the tracker has already
// been told before the error is returned.
func (p *Pipeline) Run(ctx context.Context, jobID string) (res *Result, err error) {
	logger := p.logger.With("job_id", jobID)

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &Error{Kind: KindInternal, Message: fmt.Sprintf("internal error: %v", r)}
		}
		if err != nil {
			logger.Error("pipeline failed", "error", err, "kind", KindOf(err))
			p.deps.Reporter.ReportProgress(ctx, jobID, StatusFailed, 0, 0, nil, err.Error())
		}
	}()

	logger.Info("starting download process")

	job, err := p.deps.Source.FetchJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(job.PlaylistID) == "" {
		return nil, ErrPlaylistNotFound
	}
	playlist, err := p.deps.Source.FetchPlaylist(ctx, job.PlaylistID)
	if err != nil {
		return nil, err
	}

	items := SelectDownloadable(playlist)
	skipped := CountSkipped(playlist)
	logger.Info("selected downloadable tracks", "playlist", playlist.Name, "downloadable", len(items), "skipped", skipped)
	if len(items) == 0 {
		return nil, ErrNoDownloadableTracks
	}

	ws, err := p.deps.Workspaces.Create(ctx, p.newRunID())
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		if rmErr := p.deps.Workspaces.Remove(ws); rmErr != nil {
			logger.Warn("failed to remove workspace", "dir", ws.Dir, "error", rmErr)
		}
	}()

	outcomes := p.acquireAll(ctx, jobID, ws, items, logger)

	var succeeded int
	failed := []string{}
	for _, o := range outcomes {
		if o.Success {
			succeeded++
			continue
		}
		failed = append(failed, o.Label)
	}
	if succeeded == 0 {
		return nil, ErrAllDownloadsFailed
	}
	logger.Info("downloads finished", "successful", succeeded, "failed", len(failed))

	p.deps.Reporter.ReportProgress(ctx, jobID, StatusZipping, succeeded, len(items), nil, "")

	archive, err := p.deps.Archiver.Build(ctx, ws.TracksDir, ws.Dir, playlist.Name)
	if err != nil {
		return nil, fmt.Errorf("build archive: %w", err)
	}
	logger.Info("archive built", "path", archive.Path, "files", len(archive.Files), "bytes", archive.Size, "digest", archive.Digest)

	finalPath, err := p.deps.Store.Place(jobID, archive.Path)
	if err != nil {
		return nil, fmt.Errorf("place archive: %w", err)
	}

	downloadURL := p.DownloadURL(jobID)
	p.deps.Reporter.ReportCompletion(ctx, jobID, downloadURL, failed)
	logger.Info("download process completed", "archive", finalPath, "download_url", downloadURL)

	return &Result{
		Success:          true,
		DownloadURL:      downloadURL,
		SuccessfulTracks: succeeded,
		FailedTracks:     len(failed),
		SkippedTracks:    skipped,
		FailedLabels:     failed,
		ArchiveDigest:    archive.Digest,
	}, nil
}

// acquireAll attempts every item. Progress is reported in index order before
// each attempt starts; outcomes are returned in index order.
func (p *Pipeline) acquireAll(ctx context.Context, jobID string, ws Workspace, items []TrackItem, logger *slog.Logger) []Outcome {
	outcomes := make([]Outcome, len(items))

	var g errgroup.Group
	g.SetLimit(p.opts.MaxConcurrent)

	for i, item := range items {
		i, item := i, item
		label := item.Label()
		p.deps.Reporter.ReportProgress(ctx, jobID, StatusDownloading, i, len(items), &label, "")
		logger.Info("downloading track", "index", i+1, "total", len(items), "track", label)

		g.Go(func() error {
			out := p.acquireOne(ctx, ws, i, item)
			if out.Success {
				logger.Info("track downloaded", "track", label, "files", out.Files)
			} else {
				logger.Warn("track failed", "track", label, "timed_out", out.TimedOut, "error", out.Err)
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// acquireOne runs a single acquisition in its own staging directory so a
// failed or partial download never reaches the tracks directory.
func (p *Pipeline) acquireOne(ctx context.Context, ws Workspace, index int, item TrackItem) (out Outcome) {
	label := item.Label()

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Index: index, Label: label, Err: fmt.Errorf("acquirer panic: %v", r)}
		}
	}()

	staging, err := p.deps.Workspaces.Stage(ws, index)
	if err != nil {
		return Outcome{Index: index, Label: label, Err: fmt.Errorf("stage track: %w", err)}
	}
	defer func() { _ = p.deps.Workspaces.Discard(staging) }()

	out = p.deps.Acquirer.Acquire(ctx, item, staging)
	out.Index = index
	out.Label = label
	if !out.Success {
		return out
	}

	files, err := p.deps.Workspaces.Commit(ws, staging, out.Files)
	if err != nil {
		return Outcome{Index: index, Label: label, Err: fmt.Errorf("commit track: %w", err)}
	}
	out.Files = files
	return out
}
