package model

import "fmt"

// JobStatus represents the lifecycle state of a download job.
type JobStatus string

const (
	// StatusPendingSelection means the job is waiting for an interactive choice
	StatusPendingSelection JobStatus = "pending_selection"

	// StatusQueued means the job is fully specified and waiting in the queue
	StatusQueued JobStatus = "queued"

	// StatusRunning means the worker is downloading the job right now
	StatusRunning JobStatus = "running"

	// StatusSucceeded means the artifact was delivered to the user
	StatusSucceeded JobStatus = "succeeded"

	// StatusFailed means the download or the delivery failed
	StatusFailed JobStatus = "failed"

	// StatusCancelled means the job was removed before it started running
	StatusCancelled JobStatus = "cancelled"
)

var allowedTransitions = map[JobStatus]map[JobStatus]bool{
	StatusPendingSelection: {
		StatusQueued:    true,
		StatusCancelled: true,
	},
	StatusQueued: {
		StatusRunning:   true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusSucceeded: true,
		StatusFailed:    true,
	},
	StatusSucceeded: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// String returns the string representation of JobStatus
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal returns true once a job can no longer change state
func (s JobStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether from -> to is a legal status edge.
func CanTransition(from, to JobStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Transition moves the job to the given status or fails on an illegal edge.
// Transitions are monotonic: there are no backward edges and terminal states
// have no outgoing edges.
func (j *Job) Transition(to JobStatus) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("invalid job status transition: %q -> %q (job_id=%s)", j.Status, to, j.ID)
	}
	j.Status = to
	return nil
}
