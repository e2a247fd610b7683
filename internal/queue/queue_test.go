package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ytget/tg-downloader/internal/model"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := New()

	j1 := &model.Job{ID: "j1", ChatID: 100, Status: model.StatusQueued}
	j2 := &model.Job{ID: "j2", ChatID: 200, Status: model.StatusQueued}
	j3 := &model.Job{ID: "j3", ChatID: 300, Status: model.StatusQueued}

	if pos := q.Enqueue(j1); pos != 1 {
		t.Errorf("Enqueue(j1) position = %d, expected 1", pos)
	}
	if pos := q.Enqueue(j2); pos != 2 {
		t.Errorf("Enqueue(j2) position = %d, expected 2", pos)
	}
	if pos := q.Enqueue(j3); pos != 3 {
		t.Errorf("Enqueue(j3) position = %d, expected 3", pos)
	}

	ctx := context.Background()
	for _, want := range []string{"j1", "j2", "j3"} {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if job.ID != want {
			t.Errorf("Dequeue order: got %s, expected %s", job.ID, want)
		}
	}

	if q.Size() != 0 {
		t.Errorf("Size() = %d after draining, expected 0", q.Size())
	}
}

func TestQueue_ConcurrentProducersNoLossNoDuplication(t *testing.T) {
	q := New()

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(&model.Job{ID: fmt.Sprintf("p%d-%d", p, i), Status: model.StatusQueued})
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]bool)
	lastPerProducer := make(map[string]int)
	ctx := context.Background()
	for i := 0; i < producers*perProducer; i++ {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if seen[job.ID] {
			t.Fatalf("duplicate job dequeued: %s", job.ID)
		}
		seen[job.ID] = true

		// Per-producer order must be preserved even when producers interleave.
		var p, n int
		if _, err := fmt.Sscanf(job.ID, "p%d-%d", &p, &n); err != nil {
			t.Fatalf("unexpected job id %q", job.ID)
		}
		key := fmt.Sprintf("p%d", p)
		if prev, ok := lastPerProducer[key]; ok && n <= prev {
			t.Fatalf("producer %s reordered: %d after %d", key, n, prev)
		}
		lastPerProducer[key] = n
	}

	if len(seen) != producers*perProducer {
		t.Errorf("dequeued %d jobs, expected %d", len(seen), producers*perProducer)
	}
}

func TestQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := New()

	done := make(chan *model.Job, 1)
	go func() {
		job, err := q.Dequeue(context.Background())
		if err != nil {
			t.Errorf("Dequeue failed: %v", err)
		}
		done <- job
	}()

	select {
	case <-done:
		t.Fatal("Dequeue returned before any job was enqueued")
	case <-time.After(50 * time.Millisecond):
	}

	q.Enqueue(&model.Job{ID: "late", Status: model.StatusQueued})

	select {
	case job := <-done:
		if job.ID != "late" {
			t.Errorf("Dequeue returned %s, expected late", job.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake up after Enqueue")
	}
}

func TestQueue_DequeueContextCancel(t *testing.T) {
	q := New()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Dequeue error = %v, expected context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after context cancellation")
	}
}

func TestQueue_CloseWakesConsumer(t *testing.T) {
	q := New()

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		if err != ErrClosed {
			t.Errorf("Dequeue error = %v, expected ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after Close")
	}
}

func TestQueue_CloseDrainsQueuedItems(t *testing.T) {
	q := New()
	q.Enqueue(&model.Job{ID: "queued-before-close", Status: model.StatusQueued})
	q.Close()

	job, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if job.ID != "queued-before-close" {
		t.Errorf("Dequeue returned %s, expected queued-before-close", job.ID)
	}

	if _, err := q.Dequeue(context.Background()); err != ErrClosed {
		t.Errorf("Dequeue on drained closed queue = %v, expected ErrClosed", err)
	}
}

func TestQueue_Remove(t *testing.T) {
	q := New()
	q.Enqueue(&model.Job{ID: "a", Status: model.StatusQueued})
	q.Enqueue(&model.Job{ID: "b", Status: model.StatusQueued})
	q.Enqueue(&model.Job{ID: "c", Status: model.StatusQueued})

	if removed := q.Remove("b"); removed == nil || removed.ID != "b" {
		t.Fatalf("Remove(b) = %v, expected job b", removed)
	}
	if removed := q.Remove("b"); removed != nil {
		t.Errorf("second Remove(b) = %v, expected nil", removed)
	}
	if removed := q.Remove("missing"); removed != nil {
		t.Errorf("Remove(missing) = %v, expected nil", removed)
	}

	ctx := context.Background()
	for _, want := range []string{"a", "c"} {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if job.ID != want {
			t.Errorf("Dequeue after Remove: got %s, expected %s", job.ID, want)
		}
	}
}

func TestQueue_Snapshot(t *testing.T) {
	q := New()
	q.Enqueue(&model.Job{ID: "a", Status: model.StatusQueued})
	q.Enqueue(&model.Job{ID: "b", Status: model.StatusQueued})

	snap := q.Snapshot()
	if len(snap) != 2 || snap[0].ID != "a" || snap[1].ID != "b" {
		t.Fatalf("Snapshot = %v, expected [a b]", snap)
	}

	// Mutating the snapshot slice must not affect the queue.
	snap[0] = nil
	if got := q.Snapshot(); got[0] == nil || got[0].ID != "a" {
		t.Error("Snapshot is not a stable copy")
	}
}
