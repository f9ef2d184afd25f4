package tracker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cwygoda/mixpack/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Path string
	Body map[string]any
}

// fakeTracker records status posts and serves canned job and playlist bodies.
type fakeTracker struct {
	mu       sync.Mutex
	posts    []recorded
	gets     []string
	job      string
	playlist string
	status   int
}

func (f *fakeTracker) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/download/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r.URL.EscapedPath())
		f.respond(w, f.job)
	})
	mux.HandleFunc("GET /api/playlist/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r.URL.EscapedPath())
		f.respond(w, f.playlist)
	})
	mux.HandleFunc("POST /api/download/update-status/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))

		f.mu.Lock()
		f.posts = append(f.posts, recorded{Path: r.URL.EscapedPath(), Body: body})
		f.mu.Unlock()
		if f.status != 0 {
			w.WriteHeader(f.status)
		}
	})
	return mux
}

func (f *fakeTracker) Posts() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.posts...)
}

func (f *fakeTracker) Gets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.gets...)
}

func (f *fakeTracker) record(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, path)
}

func (f *fakeTracker) respond(w http.ResponseWriter, body string) {
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, body)
}

func newTestClient(t *testing.T, f *fakeTracker) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/", Options{FetchTimeout: time.Second, StatusTimeout: time.Second}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:3000", "ftp://tracker", "://bad"} {
		_, err := NewClient(raw, Options{}, nil)
		assert.Error(t, err, "url %q", raw)
	}
}

func TestClient_FetchJob(t *testing.T) {
	f := &fakeTracker{job: `{"id":"job-1","playlistId":"pl-9","playlistName":"Mix","status":"queued","progress":{"current":0,"total":0}}`}
	c := newTestClient(t, f)

	job, err := c.FetchJob(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "pl-9", job.PlaylistID)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Equal(t, []string{"/api/download/status/job-1"}, f.Gets())
}

func TestClient_FetchJobFillsMissingID(t *testing.T) {
	f := &fakeTracker{job: `{"status":"queued","progress":{"current":0,"total":0}}`}
	c := newTestClient(t, f)

	job, err := c.FetchJob(context.Background(), "job-7")
	require.NoError(t, err)
	assert.Equal(t, "job-7", job.ID)
	assert.Empty(t, job.PlaylistID)
}

func TestClient_FetchJobEscapesPath(t *testing.T) {
	f := &fakeTracker{job: `{}`}
	c := newTestClient(t, f)

	_, err := c.FetchJob(context.Background(), "a b?c")
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/download/status/a%20b%3Fc"}, f.Gets())
}

func TestClient_FetchErrors(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeTracker
	}{
		{"not found", &fakeTracker{status: http.StatusNotFound}},
		{"server error", &fakeTracker{status: http.StatusInternalServerError}},
		{"bad json", &fakeTracker{job: "not json", playlist: "{"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.f)

			_, err := c.FetchJob(context.Background(), "job-1")
			assert.ErrorIs(t, err, domain.ErrJobNotFound)

			_, err = c.FetchPlaylist(context.Background(), "pl-1")
			assert.ErrorIs(t, err, domain.ErrPlaylistNotFound)
		})
	}
}

func TestClient_FetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(base, Options{FetchTimeout: time.Second}, nil)
	require.NoError(t, err)

	_, err = c.FetchJob(context.Background(), "job-1")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestClient_FetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, Options{FetchTimeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.FetchPlaylist(context.Background(), "pl-1")
	assert.ErrorIs(t, err, domain.ErrPlaylistNotFound)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_FetchPlaylist(t *testing.T) {
	f := &fakeTracker{playlist: `{
		"id": "pl-1",
		"name": "Road Trip",
		"tracks": {"items": [
			{"track": {"matchStatus": "matched", "isrc": "X1",
				"spotify": {"name": "One", "artists": [{"name": "A"}]},
				"tidal": {"url": "https://tidal.com/track/1"}}},
			{"track": {"matchStatus": "not_found",
				"spotify": {"name": "Two", "artists": [{"name": "B"}]},
				"tidal": null}}
		]}
	}`}
	c := newTestClient(t, f)

	p, err := c.FetchPlaylist(context.Background(), "pl-1")
	require.NoError(t, err)

	assert.Equal(t, "Road Trip", p.Name)
	require.Len(t, p.Tracks.Items, 2)
	assert.Equal(t, "A - One", p.Tracks.Items[0].Label())
	assert.Equal(t, "https://tidal.com/track/1", p.Tracks.Items[0].Locator())
	assert.Nil(t, p.Tracks.Items[1].Track.Target)
	assert.Len(t, domain.SelectDownloadable(p), 1)
}

func TestClient_ReportProgress(t *testing.T) {
	f := &fakeTracker{}
	c := newTestClient(t, f)

	track := "A - One"
	c.ReportProgress(context.Background(), "job-1", domain.StatusDownloading, 0, 3, &track, "")
	c.ReportProgress(context.Background(), "job-1", domain.StatusFailed, 0, 0, nil, "Playlist not found")

	posts := f.Posts()
	require.Len(t, posts, 2)
	assert.Equal(t, "/api/download/update-status/job-1", posts[0].Path)
	assert.Equal(t, map[string]any{
		"status": "downloading",
		"progress": map[string]any{
			"current":      float64(0),
			"total":        float64(3),
			"currentTrack": "A - One",
		},
	}, posts[0].Body)

	assert.Equal(t, map[string]any{
		"status": "failed",
		"progress": map[string]any{
			"current":      float64(0),
			"total":        float64(0),
			"currentTrack": nil,
		},
		"error": "Playlist not found",
	}, posts[1].Body)
}

func TestClient_ReportCompletion(t *testing.T) {
	f := &fakeTracker{}
	c := newTestClient(t, f)

	c.ReportCompletion(context.Background(), "job-1", "/api/download/file/job-1", nil)
	c.ReportCompletion(context.Background(), "job-1", "/api/download/file/job-1", []string{"B - Two"})

	posts := f.Posts()
	require.Len(t, posts, 2)
	assert.Equal(t, map[string]any{
		"status":       "completed",
		"downloadUrl":  "/api/download/file/job-1",
		"failedTracks": []any{},
	}, posts[0].Body)
	assert.Equal(t, []any{"B - Two"}, posts[1].Body["failedTracks"])
}

func TestClient_ReportSwallowsErrors(t *testing.T) {
	f := &fakeTracker{status: http.StatusInternalServerError}
	c := newTestClient(t, f)

	assert.NotPanics(t, func() {
		c.ReportProgress(context.Background(), "job-1", domain.StatusZipping, 1, 2, nil, "")
		c.ReportCompletion(context.Background(), "job-1", "/x", nil)
	})
	posts := f.Posts()
	assert.Len(t, posts, 2)

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	down, err := NewClient(base, Options{StatusTimeout: 100 * time.Millisecond}, nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		down.ReportProgress(context.Background(), "job-1", domain.StatusFailed, 0, 0, nil, "boom")
	})
}

func TestClient_ReportAfterCancel(t *testing.T) {
	f := &fakeTracker{}
	c := newTestClient(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.ReportProgress(ctx, "job-1", domain.StatusFailed, 0, 0, nil, "cancelled")

	posts := f.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "failed", posts[0].Body["status"])
}
