package download

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedURL means yt-dlp has no extractor for the link.
	ErrUnsupportedURL = errors.New("this URL is not supported")

	// ErrNetwork covers connectivity failures during probing.
	ErrNetwork = errors.New("network failure")

	// ErrExtraction covers metadata extraction failures for a supported URL.
	ErrExtraction = errors.New("could not extract media information")
)

// DownloadError wraps a fetch failure with the diagnostic that is shown to the
// user.
type DownloadError struct {
	Diagnostic string
	Err        error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download failed: %s: %v", e.Diagnostic, e.Err)
	}
	return fmt.Sprintf("download failed: %s", e.Diagnostic)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// classifyProbeError maps a raw yt-dlp failure onto the probe error taxonomy.
func classifyProbeError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unsupported url") || strings.Contains(msg, "no suitable extractor"):
		return fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	case strings.Contains(msg, "unable to download"),
		strings.Contains(msg, "connection"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "temporary failure"),
		strings.Contains(msg, "network"):
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	default:
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
}
