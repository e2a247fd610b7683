package config

// Package config loads application settings from a yaml file, a .env file, and
// TGDL_* environment variables, with validated defaults.
