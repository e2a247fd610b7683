package download

import (
	"context"

	"github.com/ytget/tg-downloader/internal/model"
)

// ProgressFunc receives throttle-worthy progress events during a fetch.
// stage is one of the progress package stages; percent is 0..100.
type ProgressFunc func(stage string, percent float64)

// FetchRequest fully specifies one acquisition.
type FetchRequest struct {
	URL          string
	PlaylistItem int // 1-based entry to download, 0 for the whole/main item
	MaxHeight    int // quality cap in pixels, 0 for best
	OutputDir    string
}

// Downloader is the media-acquisition capability consumed by the dispatcher
// (probe) and the worker (fetch).
type Downloader interface {
	Probe(ctx context.Context, url string) (model.ProbeResult, error)
	Fetch(ctx context.Context, req FetchRequest, onProgress ProgressFunc) (model.Artifact, error)
}
