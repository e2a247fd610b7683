package model

import "fmt"

// Candidate is one selectable entry within a selection session.
type Candidate struct {
	Label string // human readable button text
	Value string // opaque value returned on resolution
}

// PlaylistEntry is one item discovered while probing a playlist URL.
type PlaylistEntry struct {
	Index       int // 1-based, matches yt-dlp playlist_items numbering
	Title       string
	URL         string
	DurationSec int // 0 when unknown
}

// DisplayLabel returns the button text for a playlist entry, truncated the way
// chat keyboards expect.
func (e PlaylistEntry) DisplayLabel() string {
	title := e.Title
	if len(title) > 40 {
		title = title[:40]
	}
	if e.DurationSec > 0 {
		return fmt.Sprintf("%d. %s (%d:%02d)", e.Index, title, e.DurationSec/60, e.DurationSec%60)
	}
	return fmt.Sprintf("%d. %s", e.Index, title)
}

// ProbeResult describes what a URL points at before any job exists.
type ProbeResult struct {
	Entries []PlaylistEntry // more than one entry means an interactive pick
	Heights []int           // distinct video heights, sorted descending
}
