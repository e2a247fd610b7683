package worker

// Package worker contains the single sequential consumer of the job queue.
// One job runs at a time, from dequeue to a terminal state: working directory
// allocation, fetch with progress forwarding, delivery, and cleanup that
// respects artifact ownership transfer.
