package queue

// Package queue implements the in-memory FIFO of pending download jobs with a
// blocking dequeue for the single worker. Order is strict arrival order: no
// priorities, no deduplication, no retries.
