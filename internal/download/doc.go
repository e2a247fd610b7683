package download

// Package download implements the acquisition side of the pipeline on top of
// yt-dlp (via github.com/lrstanley/go-ytdlp, with playlist listing through
// github.com/ytget/ytdlp/v2): probing a URL for playlist entries and quality
// options, and fetching media into a job's working directory with progress
// propagation.
