package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ytget/tg-downloader/internal/download"
	"github.com/ytget/tg-downloader/internal/metrics"
	"github.com/ytget/tg-downloader/internal/model"
	"github.com/ytget/tg-downloader/internal/queue"
)

// Sender delivers a finished artifact to the requesting chat.
type Sender interface {
	Deliver(ctx context.Context, chatID int64, artifact model.Artifact) (model.DeliveryResult, error)
}

// Notifier edits the per-job status message. Edits are best-effort.
type Notifier interface {
	EditStatus(chatID int64, messageID int, text string) error
}

// Reporter receives the running job's progress events.
type Reporter interface {
	Track(job *model.Job)
	Done(jobID string)
	OnProgress(jobID string, percent float64, stage string)
}

// Loop is the single consumer of the job queue.
type Loop struct {
	queue      *queue.Queue
	downloader download.Downloader
	sender     Sender
	notifier   Notifier
	reporter   Reporter
	root       string
	log        *zap.Logger
	metrics    *metrics.Metrics
}

// NewLoop wires the worker. root is the directory that holds per-job working
// directories.
func NewLoop(q *queue.Queue, dl download.Downloader, sender Sender, notifier Notifier, reporter Reporter, root string, log *zap.Logger, m *metrics.Metrics) *Loop {
	return &Loop{
		queue:      q,
		downloader: dl,
		sender:     sender,
		notifier:   notifier,
		reporter:   reporter,
		root:       root,
		log:        log,
		metrics:    m,
	}
}

// Run consumes jobs until the context is cancelled or the queue is closed.
// A failing job never stops the loop; the next job is dequeued immediately.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("worker loop started")

	for {
		job, err := l.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || errors.Is(err, context.Canceled) {
				l.log.Info("worker loop stopped", zap.Error(err))
				return nil
			}
			return err
		}
		l.updateQueueDepth()
		l.announceQueuePositions()

		l.process(ctx, job)
	}
}

// process drives one job from running to a terminal state and emits exactly
// one final notification.
func (l *Loop) process(ctx context.Context, job *model.Job) {
	if err := job.Transition(model.StatusRunning); err != nil {
		l.log.Error("dequeued job in unexpected state", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	l.log.Info("job start",
		zap.String("job_id", job.ID),
		zap.Int64("chat_id", job.ChatID),
		zap.String("url", job.SourceURL),
		zap.Int("playlist_item", job.PlaylistItem),
		zap.Int("max_height", job.MaxHeight))

	l.editStatus(job, "Starting download... 0%")

	workdir, err := l.ensureWorkdir()
	if err != nil {
		l.log.Error("workdir allocation failed", zap.String("job_id", job.ID), zap.Error(err))
		l.finish(job, model.StatusFailed, "Could not allocate disk space for the download. Please try again later.")
		return
	}
	job.Workdir = workdir

	l.reporter.Track(job)
	artifact, fetchErr := l.downloader.Fetch(ctx, download.FetchRequest{
		URL:          job.SourceURL,
		PlaylistItem: job.PlaylistItem,
		MaxHeight:    job.MaxHeight,
		OutputDir:    workdir,
	}, func(stage string, percent float64) {
		l.reporter.OnProgress(job.ID, percent, stage)
	})
	l.reporter.Done(job.ID)

	if fetchErr != nil {
		l.log.Warn("fetch failed", zap.String("job_id", job.ID), zap.Error(fetchErr))
		l.cleanupWorkdir(job, nil)
		l.finish(job, model.StatusFailed, fmt.Sprintf(
			"This service cannot download from this URL:\n%s\n\nPlease try a different link.", job.SourceURL))
		return
	}

	l.editStatus(job, "Download completed... 100%")
	l.editStatus(job, "Uploading file...")

	result, deliverErr := l.sender.Deliver(ctx, job.ChatID, artifact)
	if deliverErr != nil {
		l.log.Warn("delivery failed", zap.String("job_id", job.ID), zap.Error(deliverErr))
		l.cleanupWorkdir(job, nil)
		l.finish(job, model.StatusFailed, deliveryFailureText(deliverErr))
		return
	}

	var preserve []string
	if result.OwnershipTransferred {
		preserve = artifact.Paths
	}
	l.cleanupWorkdir(job, preserve)
	l.finish(job, model.StatusSucceeded, "Done.")

	l.log.Info("job done", zap.String("job_id", job.ID), zap.Int("files", len(artifact.Paths)))
}

// finish records the terminal state and sends the single final notification.
func (l *Loop) finish(job *model.Job, status model.JobStatus, text string) {
	if err := job.Transition(status); err != nil {
		l.log.Error("terminal transition failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	if l.metrics != nil {
		l.metrics.JobsTotal.WithLabelValues(string(status)).Inc()
	}
	l.editStatus(job, text)
}

func (l *Loop) editStatus(job *model.Job, text string) {
	if err := l.notifier.EditStatus(job.ChatID, job.StatusMessageID, text); err != nil {
		l.log.Debug("status edit failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// announceQueuePositions refreshes the waiting jobs' position messages after
// the head of the queue moved.
func (l *Loop) announceQueuePositions() {
	for pos, job := range l.queue.Snapshot() {
		l.editStatus(job, fmt.Sprintf("In queue. Position: %d.\nPlease wait...", pos+1))
	}
}

func (l *Loop) updateQueueDepth() {
	if l.metrics != nil {
		l.metrics.QueueDepth.Set(float64(l.queue.Size()))
	}
}

// ensureWorkdir creates a fresh private working directory under the download
// root.
func (l *Loop) ensureWorkdir() (string, error) {
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("session-%s-%s",
		time.Now().UTC().Format("20060102-150405"),
		strings.Split(uuid.New().String(), "-")[0])
	dir := filepath.Join(l.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// cleanupWorkdir releases the job's working directory. Paths whose ownership
// was transferred to the sender survive; everything else goes. Deletion is
// refused outside the download root or for directories we did not name.
func (l *Loop) cleanupWorkdir(job *model.Job, preserve []string) {
	dir := job.Workdir
	if dir == "" {
		return
	}

	absRoot, err := filepath.Abs(l.root)
	if err != nil {
		l.log.Warn("cleanup: cannot resolve download root", zap.Error(err))
		return
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		l.log.Warn("cleanup: cannot resolve workdir", zap.String("workdir", dir), zap.Error(err))
		return
	}

	rel, err := filepath.Rel(absRoot, absDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		l.log.Warn("refusing to delete outside download root", zap.String("workdir", absDir))
		return
	}
	if !strings.HasPrefix(filepath.Base(absDir), "session-") {
		l.log.Warn("refusing to delete non-session dir", zap.String("workdir", absDir))
		return
	}

	if len(preserve) == 0 {
		if err := os.RemoveAll(absDir); err != nil {
			l.log.Warn("workdir cleanup failed", zap.String("workdir", absDir), zap.Error(err))
		}
		return
	}

	keep := make(map[string]bool, len(preserve))
	for _, p := range preserve {
		if abs, err := filepath.Abs(p); err == nil {
			keep[abs] = true
		}
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		l.log.Warn("workdir cleanup failed", zap.String("workdir", absDir), zap.Error(err))
		return
	}
	for _, entry := range entries {
		path := filepath.Join(absDir, entry.Name())
		if keep[path] {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			l.log.Warn("workdir cleanup failed", zap.String("path", path), zap.Error(err))
		}
	}
	// The directory itself stays only while it shelters transferred artifacts.
}

func deliveryFailureText(err error) string {
	if errors.Is(err, ErrPayloadTooLarge) {
		return "The file is too large to send over this chat. Try a lower quality."
	}
	return "The download finished, but sending the file failed. Please try again."
}

// ErrPayloadTooLarge is reported by senders when an artifact exceeds the
// transport's upload limit.
var ErrPayloadTooLarge = errors.New("artifact exceeds the transport upload limit")
