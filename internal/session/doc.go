package session

// Package session holds pending interactive choices (playlist entry, quality
// tier) keyed by chat+message identity. Sessions are volatile, expire lazily on
// access past their TTL deadline, and are destroyed on resolution or when a new
// session takes over the same key.
