package download

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	goytdlp "github.com/lrstanley/go-ytdlp"
	ytlist "github.com/ytget/ytdlp/v2"
	"go.uber.org/zap"

	"github.com/ytget/tg-downloader/internal/model"
	"github.com/ytget/tg-downloader/internal/progress"
)

const (
	outputTemplate       = "%(title).200s [%(id)s].%(ext)s"
	progressFuncInterval = 500 * time.Millisecond

	youtubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

// Service drives yt-dlp for probing and fetching.
type Service struct {
	log *zap.Logger
}

// NewService creates a yt-dlp backed downloader.
func NewService(log *zap.Logger) *Service {
	return &Service{log: log}
}

var _ Downloader = (*Service)(nil)

// Probe validates that yt-dlp supports the URL and reports playlist entries
// and available quality tiers. No job exists yet at this point; failures here
// surface directly to the user.
func (s *Service) Probe(ctx context.Context, url string) (model.ProbeResult, error) {
	if !IsValidURL(url) {
		return model.ProbeResult{}, fmt.Errorf("%w: expected an http/https link", ErrUnsupportedURL)
	}

	entries, err := s.probeEntries(ctx, url)
	if err != nil {
		return model.ProbeResult{}, err
	}

	// Quality options come from the main item: the first entry for playlists,
	// the URL itself otherwise.
	target := url
	if len(entries) > 0 {
		target = entries[0].URL
	}
	heights, err := s.probeHeights(ctx, target)
	if err != nil {
		return model.ProbeResult{}, err
	}

	s.log.Info("probe finished",
		zap.String("url", url),
		zap.Int("entries", len(entries)),
		zap.Ints("heights", capInts(heights, 6)))

	return model.ProbeResult{Entries: entries, Heights: heights}, nil
}

// probeEntries lists playlist entries. YouTube playlist URLs use the fast
// flat-listing client; everything else goes through a flat-playlist JSON dump.
func (s *Service) probeEntries(ctx context.Context, url string) ([]model.PlaylistEntry, error) {
	if playlistID := extractPlaylistID(url); playlistID != "" {
		items, err := ytlist.New().GetPlaylistItemsAll(ctx, playlistID, 0)
		if err == nil && len(items) > 0 {
			entries := make([]model.PlaylistEntry, 0, len(items))
			for i, it := range items {
				entries = append(entries, model.PlaylistEntry{
					Index: i + 1,
					Title: it.Title,
					URL:   fmt.Sprintf(youtubeVideoURLTemplate, it.VideoID),
				})
			}
			return entries, nil
		}
		if err != nil {
			s.log.Debug("flat playlist listing failed, falling back to yt-dlp dump",
				zap.String("playlist_id", playlistID), zap.Error(err))
		}
	}

	dl := goytdlp.New().
		SkipDownload().
		FlatPlaylist().
		DumpSingleJSON()

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, classifyProbeError(err)
	}
	return parsePlaylistEntries([]byte(result.Stdout)), nil
}

func (s *Service) probeHeights(ctx context.Context, url string) ([]int, error) {
	dl := goytdlp.New().
		SkipDownload().
		NoPlaylist().
		DumpSingleJSON()

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, classifyProbeError(err)
	}
	return availableHeights([]byte(result.Stdout)), nil
}

// Fetch downloads the requested item into req.OutputDir and returns the
// produced artifact. Progress callbacks arrive on the calling goroutine's
// clock tick and must not block.
func (s *Service) Fetch(ctx context.Context, req FetchRequest, onProgress ProgressFunc) (model.Artifact, error) {
	s.log.Info("fetch start",
		zap.String("url", req.URL),
		zap.Int("playlist_item", req.PlaylistItem),
		zap.Int("max_height", req.MaxHeight),
		zap.String("output_dir", req.OutputDir))

	err := s.runDownload(ctx, req, formatSelector(req.MaxHeight), onProgress)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "requested format is not available") {
		// Some extractors expose a very limited format set; retry once with a
		// fully permissive selector.
		s.log.Warn("format not available, retrying with permissive selector", zap.String("url", req.URL))
		err = s.runDownload(ctx, req, "best/bestaudio/bestvideo", onProgress)
	}
	if err != nil {
		return model.Artifact{}, &DownloadError{Diagnostic: "yt-dlp could not download this link", Err: err}
	}

	files, err := CollectMediaFiles(req.OutputDir)
	if err != nil {
		return model.Artifact{}, &DownloadError{Diagnostic: "could not read the working directory", Err: err}
	}
	if len(files) == 0 {
		return model.Artifact{}, &DownloadError{Diagnostic: "the download finished but no media file was produced"}
	}

	s.log.Info("fetch finished", zap.String("url", req.URL), zap.Int("files", len(files)))

	return model.Artifact{Paths: files, Kind: MediaKindForPath(files[0])}, nil
}

func (s *Service) runDownload(ctx context.Context, req FetchRequest, format string, onProgress ProgressFunc) error {
	dl := goytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		Format(format).
		MergeOutputFormat("mp4").
		Output(filepath.Join(req.OutputDir, outputTemplate))

	if req.PlaylistItem > 0 {
		dl = dl.PlaylistItems(strconv.Itoa(req.PlaylistItem))
	} else {
		// One input URL -> one output file; never pull a whole playlist by accident.
		dl = dl.NoPlaylist()
	}

	if onProgress != nil {
		dl.ProgressFunc(progressFuncInterval, func(update goytdlp.ProgressUpdate) {
			if update.TotalBytes > 0 {
				percent := float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
				onProgress(progress.StageDownload, percent)
			}
		})
	}

	_, err := dl.Run(ctx, req.URL)
	return err
}

// formatSelector prefers codecs the chat client can play inline: H.264 video
// with m4a audio, then any mergeable video+audio, then bestaudio for
// audio-only sources.
func formatSelector(maxHeight int) string {
	if maxHeight > 0 {
		return fmt.Sprintf(
			"bv*[height<=%d][vcodec^=avc1]+ba[ext=m4a]/"+
				"bv*[height<=%d][vcodec!=none]+ba/"+
				"best[height<=%d][vcodec!=none]/"+
				"best[vcodec!=none]/"+
				"bestaudio/best",
			maxHeight, maxHeight, maxHeight)
	}
	return "bv*[vcodec^=avc1]+ba[ext=m4a]/bv*[vcodec!=none]+ba/best[vcodec!=none]/bestaudio/best"
}

func capInts(values []int, n int) []int {
	if len(values) <= n {
		return values
	}
	return values[:n]
}
