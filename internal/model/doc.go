package model

// Package model defines domain data structures used across the app: download
// jobs, selection candidates, artifacts, and status enums with explicit state
// transitions.
