package dispatch

// Package dispatch turns incoming chat events into selection sessions and
// queued jobs. It runs on the transport's goroutines and talks to the worker
// only through the job queue and the session store.
