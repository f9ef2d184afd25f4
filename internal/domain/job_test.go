package domain

import (
	"encoding/json"
	"testing"
)

func TestJob_DecodeTrackerStatus(t *testing.T) {
	raw := `{
		"id": "job_1712345678_abc",
		"playlistId": "37i9dQZF1DX",
		"playlistName": "Focus",
		"status": "downloading",
		"progress": {"current": 2, "total": 10, "currentTrack": "A - B"},
		"failedTracks": ["C - D"]
	}`

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if job.PlaylistID != "37i9dQZF1DX" {
		t.Errorf("PlaylistID = %q", job.PlaylistID)
	}
	if job.Status != StatusDownloading {
		t.Errorf("Status = %q, want %q", job.Status, StatusDownloading)
	}
	if job.Progress.Current != 2 || job.Progress.Total != 10 || job.Progress.CurrentTrack != "A - B" {
		t.Errorf("Progress = %+v", job.Progress)
	}
	if len(job.FailedTracks) != 1 || job.FailedTracks[0] != "C - D" {
		t.Errorf("FailedTracks = %v", job.FailedTracks)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"job not found", ErrJobNotFound, KindNotFound},
		{"playlist not found", ErrPlaylistNotFound, KindNotFound},
		{"no downloadable", ErrNoDownloadableTracks, KindNoDownloadableTracks},
		{"all failed", ErrAllDownloadsFailed, KindAllDownloadsFailed},
		{"foreign", errFoo, KindInternal},
		{"nil", nil, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

type fooError struct{}

func (fooError) Error() string { return "foo" }

var errFoo error = fooError{}

func TestError_Message(t *testing.T) {
	if got := ErrNoDownloadableTracks.Error(); got != "No tracks could be downloaded" {
		t.Errorf("Error() = %q", got)
	}
	wrapped := &Error{Kind: KindInternal, Err: errFoo}
	if got := wrapped.Error(); got != "foo" {
		t.Errorf("Error() = %q, want fallback to wrapped error", got)
	}
	if wrapped.Unwrap() != errFoo {
		t.Error("Unwrap() should return the wrapped error")
	}
}
