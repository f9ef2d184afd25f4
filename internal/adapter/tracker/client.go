package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cwygoda/mixpack/internal/domain"
)

const userAgent = "mixpack"

// Options tune the tracker client.
type Options struct {
	FetchTimeout  time.Duration
	StatusTimeout time.Duration
	// HTTPClient overrides the default client; its own Timeout is left alone.
	HTTPClient *http.Client
}

// Client talks to the job tracker's HTTP API. It is both the job source and
// the status reporter.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	fetchTimeout  time.Duration
	statusTimeout time.Duration
	logger        *slog.Logger
}

var (
	_ domain.JobSource      = (*Client)(nil)
	_ domain.StatusReporter = (*Client)(nil)
)

// NewClient creates a client for the tracker at baseURL.
func NewClient(baseURL string, opts Options, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse tracker url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("tracker url %q must be http or https", baseURL)
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.StatusTimeout <= 0 {
		opts.StatusTimeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:       strings.TrimRight(u.String(), "/"),
		httpClient:    opts.HTTPClient,
		fetchTimeout:  opts.FetchTimeout,
		statusTimeout: opts.StatusTimeout,
		logger:        logger,
	}, nil
}

// FetchJob returns the job's current record. Any failure is ErrJobNotFound.
func (c *Client) FetchJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	if err := c.getJSON(ctx, "/api/download/status/"+url.PathEscape(jobID), &job); err != nil {
		c.logger.Error("failed to get job details", "job_id", jobID, "error", err)
		return nil, domain.ErrJobNotFound
	}
	if job.ID == "" {
		job.ID = jobID
	}
	return &job, nil
}

// FetchPlaylist returns the enhanced playlist. Any failure is ErrPlaylistNotFound.
func (c *Client) FetchPlaylist(ctx context.Context, playlistID string) (*domain.Playlist, error) {
	var p domain.Playlist
	if err := c.getJSON(ctx, "/api/playlist/"+url.PathEscape(playlistID), &p); err != nil {
		c.logger.Error("failed to get playlist data", "playlist_id", playlistID, "error", err)
		return nil, domain.ErrPlaylistNotFound
	}
	return &p, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type progressBody struct {
	Current      int     `json:"current"`
	Total        int     `json:"total"`
	CurrentTrack *string `json:"currentTrack"`
}

type progressUpdate struct {
	Status   domain.JobStatus `json:"status"`
	Progress progressBody     `json:"progress"`
	Error    string           `json:"error,omitempty"`
}

type completionUpdate struct {
	Status       domain.JobStatus `json:"status"`
	DownloadURL  string           `json:"downloadUrl"`
	FailedTracks []string         `json:"failedTracks"`
}

// ReportProgress posts a status transition. Failures are logged, never returned.
func (c *Client) ReportProgress(ctx context.Context, jobID string, status domain.JobStatus, current, total int, currentTrack *string, errMsg string) {
	c.post(ctx, jobID, progressUpdate{
		Status: status,
		Progress: progressBody{
			Current:      current,
			Total:        total,
			CurrentTrack: currentTrack,
		},
		Error: errMsg,
	})
}

// ReportCompletion posts the terminal completed state. Failures are logged,
// never returned.
func (c *Client) ReportCompletion(ctx context.Context, jobID, downloadURL string, failedTracks []string) {
	if failedTracks == nil {
		failedTracks = []string{}
	}
	c.post(ctx, jobID, completionUpdate{
		Status:       domain.StatusCompleted,
		DownloadURL:  downloadURL,
		FailedTracks: failedTracks,
	})
}

func (c *Client) post(ctx context.Context, jobID string, body any) {
	logger := c.logger.With("job_id", jobID)
	if err := c.postJSON(ctx, jobID, body); err != nil {
		logger.Warn("status update failed", "error", err)
	}
}

func (c *Client) postJSON(ctx context.Context, jobID string, body any) error {
	// Terminal states must still go out when the run's context is done.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.statusTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode status update: %w", err)
	}
	endpoint := c.baseURL + "/api/download/update-status/" + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New("unexpected status " + resp.Status)
	}
	c.logger.Debug("status update sent", "job_id", jobID, "status_code", resp.StatusCode)
	return nil
}
