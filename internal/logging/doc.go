package logging

// Package logging builds the process-wide zap logger from configuration.
