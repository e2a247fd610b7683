package download

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ytget/tg-downloader/internal/model"
)

var (
	videoExts = map[string]bool{".mp4": true, ".mkv": true, ".webm": true}
	audioExts = map[string]bool{".mp3": true, ".m4a": true, ".aac": true, ".wav": true, ".flac": true, ".ogg": true}
)

// MediaKindForPath classifies a produced file for delivery.
func MediaKindForPath(path string) model.MediaKind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case videoExts[ext]:
		return model.MediaVideo
	case audioExts[ext]:
		return model.MediaAudio
	default:
		return model.MediaDocument
	}
}

// CollectMediaFiles lists finished media files in a working directory, newest
// first (ties broken by size). Partial downloads are skipped.
func CollectMediaFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type fileInfo struct {
		path    string
		modTime int64
		size    int64
	}

	var files []fileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".part") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !videoExts[ext] && !audioExts[ext] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{
			path:    filepath.Join(dir, name),
			modTime: info.ModTime().UnixNano(),
			size:    info.Size(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime != files[j].modTime {
			return files[i].modTime > files[j].modTime
		}
		return files[i].size > files[j].size
	})

	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.path)
	}
	return out, nil
}
