package app

// Package app assembles the service: configuration, logging, metrics, the
// chat transport, the dispatcher, and the worker loop, all under one
// lifecycle.
