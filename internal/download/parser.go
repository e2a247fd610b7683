package download

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/ytget/tg-downloader/internal/model"
)

// URL parameters and separators
const (
	PlaylistParam  = "list="
	ParamSeparator = "&"
)

type probeEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	WebpageURL string  `json:"webpage_url"`
	IEKey      string  `json:"ie_key"`
	Duration   float64 `json:"duration"`
}

type probeFormat struct {
	Height int    `json:"height"`
	VCodec string `json:"vcodec"`
}

type probeInfo struct {
	Type    string        `json:"_type"`
	Entries []probeEntry  `json:"entries"`
	Formats []probeFormat `json:"formats"`
}

// IsValidURL accepts only http/https links.
func IsValidURL(url string) bool {
	url = strings.TrimSpace(url)
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// extractPlaylistID pulls the playlist ID out of a YouTube-style URL.
func extractPlaylistID(url string) string {
	if !strings.Contains(url, PlaylistParam) {
		return ""
	}
	parts := strings.Split(url, PlaylistParam)
	if len(parts) < 2 {
		return ""
	}
	id := parts[1]
	if strings.Contains(id, ParamSeparator) {
		id = strings.Split(id, ParamSeparator)[0]
	}
	return id
}

// parsePlaylistEntries extracts ordered playlist entries from a flat-playlist
// JSON dump. A non-playlist dump yields no entries.
func parsePlaylistEntries(data []byte) []model.PlaylistEntry {
	var info probeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}
	if info.Type != "playlist" {
		return nil
	}

	entries := make([]model.PlaylistEntry, 0, len(info.Entries))
	for _, e := range info.Entries {
		url := entryURL(e)
		if url == "" {
			continue
		}
		title := strings.TrimSpace(e.Title)
		if title == "" {
			title = e.ID
		}
		if title == "" {
			title = "(untitled)"
		}
		entries = append(entries, model.PlaylistEntry{
			Index:       len(entries) + 1,
			Title:       title,
			URL:         url,
			DurationSec: int(e.Duration),
		})
	}
	return entries
}

// entryURL resolves the best downloadable URL for a flat playlist entry.
func entryURL(e probeEntry) string {
	if strings.HasPrefix(e.WebpageURL, "http") {
		return e.WebpageURL
	}
	if e.URL == "" {
		return ""
	}
	if strings.HasPrefix(e.URL, "http") {
		return e.URL
	}
	if e.IEKey != "" {
		return e.IEKey + ":" + e.URL
	}
	return e.URL
}

// availableHeights lists distinct video heights in a format dump, best first.
// Audio-only formats (vcodec "none") are ignored.
func availableHeights(data []byte) []int {
	var info probeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}

	seen := make(map[int]bool)
	for _, f := range info.Formats {
		if f.Height > 0 && f.VCodec != "" && f.VCodec != "none" {
			seen[f.Height] = true
		}
	}

	heights := make([]int, 0, len(seen))
	for h := range seen {
		heights = append(heights, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))
	return heights
}
