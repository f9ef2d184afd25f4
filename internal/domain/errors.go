package domain

import "errors"

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindNotFound             ErrorKind = "not_found"
	KindNoDownloadableTracks ErrorKind = "no_downloadable_tracks"
	KindAllDownloadsFailed   ErrorKind = "all_downloads_failed"
	KindInternal             ErrorKind = "internal"
)

// Error is a fatal pipeline error. Message is what the tracker and the
// inbound caller see.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrJobNotFound      = &Error{Kind: KindNotFound, Message: "Job not found"}
	ErrPlaylistNotFound = &Error{Kind: KindNotFound, Message: "Playlist not found"}
	// Zero matched tracks reports the same message as zero successes.
	ErrNoDownloadableTracks = &Error{Kind: KindNoDownloadableTracks, Message: "No tracks could be downloaded"}
	ErrAllDownloadsFailed   = &Error{Kind: KindAllDownloadsFailed, Message: "No tracks could be downloaded"}
)

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
