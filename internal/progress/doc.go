package progress

// Package progress rate-limits outward status updates for running jobs. The
// downloader may report at high frequency; at most one chat edit goes out per
// configured minimum interval per job, with a stall heartbeat when nothing
// moves. Edits are fire-and-forget and never block or fail the download.
