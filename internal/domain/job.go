package domain

// JobStatus represents the state of a download job as tracked by the job service.
type JobStatus string

const (
	StatusReceived    JobStatus = "received"
	StatusQueued      JobStatus = "queued"
	StatusFetching    JobStatus = "fetching"
	StatusDownloading JobStatus = "downloading"
	StatusZipping     JobStatus = "zipping"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

// Progress mirrors the tracker's progress counters.
type Progress struct {
	Current      int    `json:"current"`
	Total        int    `json:"total"`
	CurrentTrack string `json:"currentTrack,omitempty"`
}

// Job is a download job owned by the external tracker.
type Job struct {
	ID           string    `json:"id"`
	PlaylistID   string    `json:"playlistId"`
	PlaylistName string    `json:"playlistName"`
	Status       JobStatus `json:"status"`
	Progress     Progress  `json:"progress"`
	DownloadURL  string    `json:"downloadUrl,omitempty"`
	Error        string    `json:"error,omitempty"`
	FailedTracks []string  `json:"failedTracks,omitempty"`
}

// Result is returned by a successful pipeline run.
type Result struct {
	Success          bool
	DownloadURL      string
	SuccessfulTracks int
	FailedTracks     int
	SkippedTracks    int
	FailedLabels     []string
	ArchiveDigest    string
}
