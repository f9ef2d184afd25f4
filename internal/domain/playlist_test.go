package domain

import "testing"

func item(status MatchStatus, name string, artists ...string) TrackItem {
	src := &SourceTrack{Name: name}
	for _, a := range artists {
		src.Artists = append(src.Artists, Artist{Name: a})
	}
	return TrackItem{Track: EnhancedTrack{
		MatchStatus: status,
		Source:      src,
		Target:      &TargetTrack{URL: "https://tidal.com/track/" + name},
	}}
}

func TestTrackItem_Label(t *testing.T) {
	tests := []struct {
		name string
		item TrackItem
		want string
	}{
		{"artist and title", item(MatchMatched, "Song", "Artist", "Feat"), "Artist - Song"},
		{"no artists", item(MatchMatched, "Song"), "Song"},
		{"blank artist", item(MatchMatched, "Song", " "), "Song"},
		{"no title", item(MatchMatched, "", "Artist"), "Unknown track"},
		{"no source", TrackItem{}, "Unknown track"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Label(); got != tt.want {
				t.Errorf("Label() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrackItem_Locator(t *testing.T) {
	it := item(MatchMatched, "x")
	it.Track.Target.URL = "  https://tidal.com/track/1 "
	if got := it.Locator(); got != "https://tidal.com/track/1" {
		t.Errorf("Locator() = %q", got)
	}
	if got := (TrackItem{}).Locator(); got != "" {
		t.Errorf("Locator() on empty item = %q, want empty", got)
	}
}

func TestSelectDownloadable(t *testing.T) {
	p := &Playlist{Name: "mix"}
	p.Tracks.Items = []TrackItem{
		item(MatchMatched, "a"),
		item(MatchNotFound, "b"),
		item(MatchMatched, "c"),
		item(MatchNoISRC, "d"),
		item(MatchError, "e"),
		item(MatchStatus("pending"), "f"),
		item(MatchMatched, "g"),
	}

	got := SelectDownloadable(p)
	want := []string{"a", "c", "g"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, it := range got {
		if it.Track.Source.Name != want[i] {
			t.Errorf("item %d = %q, want %q", i, it.Track.Source.Name, want[i])
		}
		if !it.Matched() {
			t.Errorf("item %d not matched", i)
		}
	}
	if skipped := CountSkipped(p); skipped != 4 {
		t.Errorf("CountSkipped() = %d, want 4", skipped)
	}
}

func TestSelectDownloadable_Empty(t *testing.T) {
	if got := SelectDownloadable(nil); got == nil || len(got) != 0 {
		t.Errorf("SelectDownloadable(nil) = %#v, want empty non-nil", got)
	}
	if got := SelectDownloadable(&Playlist{}); len(got) != 0 {
		t.Errorf("SelectDownloadable(empty) = %v, want empty", got)
	}
	if got := CountSkipped(nil); got != 0 {
		t.Errorf("CountSkipped(nil) = %d, want 0", got)
	}
}

func TestSelectDownloadable_NoneMatched(t *testing.T) {
	p := &Playlist{}
	p.Tracks.Items = []TrackItem{item(MatchNotFound, "a"), item(MatchNoISRC, "b")}

	if got := SelectDownloadable(p); len(got) != 0 {
		t.Errorf("SelectDownloadable() = %v, want empty", got)
	}
}
