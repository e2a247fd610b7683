package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/ytget/tg-downloader/internal/model"
)

// ErrClosed is returned by Dequeue after Close.
var ErrClosed = errors.New("job queue closed")

// Queue is an unbounded FIFO of jobs with a blocking Dequeue. All state is
// in-memory and discarded on shutdown.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*model.Job
	closed bool
}

// New creates an empty job queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a job to the tail and returns its 1-based waiting position.
func (q *Queue) Enqueue(job *model.Job) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, job)
	pos := len(q.items)
	q.cond.Signal()
	return pos
}

// Dequeue blocks until a job is available, the context is cancelled, or the
// queue is closed. Jobs come out in exact arrival order.
func (q *Queue) Dequeue(ctx context.Context) (*model.Job, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q.cond.Wait()
	}

	job := q.items[0]
	q.items = q.items[1:]
	return job, nil
}

// Size returns the number of waiting jobs.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a stable copy of the currently waiting jobs.
func (q *Queue) Snapshot() []*model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*model.Job, len(q.items))
	copy(out, q.items)
	return out
}

// Remove deletes a waiting job by ID. It returns the removed job, or nil when
// the job is absent (already dequeued or never enqueued). Running jobs are out
// of the queue's reach: they cannot be cancelled here.
func (q *Queue) Remove(jobID string) *model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, job := range q.items {
		if job.ID == jobID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return job
		}
	}
	return nil
}

// Close wakes all blocked consumers. Remaining items are discarded with the
// process; Dequeue drains what is already queued before reporting ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
