package model

import "time"

// Job represents a single acquisition-and-delivery request
type Job struct {
	ID              string
	ChatID          int64
	RequesterID     int64
	SourceURL       string
	PlaylistItem    int // 1-based playlist entry, 0 when the URL is a single item
	MaxHeight       int // quality cap in pixels, 0 means best available
	Status          JobStatus
	CreatedAt       time.Time
	Workdir         string // private working directory, set by the worker
	StatusMessageID int    // chat message the worker edits with progress/status
}

// MediaKind classifies an artifact file for delivery purposes.
type MediaKind string

const (
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// Artifact is the set of files produced by a successful download.
type Artifact struct {
	Paths []string
	Kind  MediaKind
}

// DeliveryResult reports the outcome of handing an artifact to the transport.
// When OwnershipTransferred is true, the delivered paths must survive workdir
// cleanup.
type DeliveryResult struct {
	OwnershipTransferred bool
}
