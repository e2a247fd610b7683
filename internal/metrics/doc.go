package metrics

// Package metrics exposes Prometheus collectors for the job pipeline.
