package domain

import "strings"

// MatchStatus is the cross-catalog match state computed upstream.
type MatchStatus string

const (
	MatchMatched  MatchStatus = "matched"
	MatchNoISRC   MatchStatus = "no_isrc"
	MatchNotFound MatchStatus = "not_found"
	MatchError    MatchStatus = "error"
)

// Artist is a source-catalog artist credit.
type Artist struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// SourceTrack carries source-catalog metadata.
type SourceTrack struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name"`
	Artists []Artist `json:"artists"`
}

// TargetTrack is the matched track in the target catalog.
type TargetTrack struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// EnhancedTrack wraps a source track with its match result.
type EnhancedTrack struct {
	ISRC        string       `json:"isrc,omitempty"`
	MatchStatus MatchStatus  `json:"matchStatus"`
	Source      *SourceTrack `json:"spotify"`
	Target      *TargetTrack `json:"tidal"`
}

// TrackItem is one playlist entry.
type TrackItem struct {
	Track EnhancedTrack `json:"track"`
}

// Matched reports whether the item is eligible for download.
func (t TrackItem) Matched() bool {
	return t.Track.MatchStatus == MatchMatched
}

// Label returns "Artist - Title" for human-facing reporting.
func (t TrackItem) Label() string {
	src := t.Track.Source
	if src == nil || strings.TrimSpace(src.Name) == "" {
		return "Unknown track"
	}
	if len(src.Artists) == 0 || strings.TrimSpace(src.Artists[0].Name) == "" {
		return src.Name
	}
	return src.Artists[0].Name + " - " + src.Name
}

// Locator returns the target-catalog URL used to drive acquisition, or "".
func (t TrackItem) Locator() string {
	if t.Track.Target == nil {
		return ""
	}
	return strings.TrimSpace(t.Track.Target.URL)
}

// Playlist is an enhanced playlist as served by the tracker.
type Playlist struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tracks struct {
		Items []TrackItem `json:"items"`
	} `json:"tracks"`
}

// SelectDownloadable keeps matched items, preserving playlist order.
func SelectDownloadable(p *Playlist) []TrackItem {
	if p == nil {
		return []TrackItem{}
	}
	selected := make([]TrackItem, 0, len(p.Tracks.Items))
	for _, item := range p.Tracks.Items {
		if item.Matched() {
			selected = append(selected, item)
		}
	}
	return selected
}

// CountSkipped returns the number of items excluded from download.
func CountSkipped(p *Playlist) int {
	if p == nil {
		return 0
	}
	return len(p.Tracks.Items) - len(SelectDownloadable(p))
}
