package progress

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ytget/tg-downloader/internal/model"
)

// Stages reported by the downloader.
const (
	StageDownload   = "download"
	StageProcessing = "processing"
)

// Editor updates the status message of a job in the chat.
type Editor interface {
	EditStatus(chatID int64, messageID int, text string) error
}

type jobState struct {
	chatID    int64
	messageID int

	limiter *rate.Limiter

	mu           sync.Mutex
	stage        string
	lastPercent  int
	lastEmitted  time.Time
	lastProgress time.Time

	stop chan struct{}
}

// Reporter throttles progress updates per job. The throttling decision is a
// single non-blocking limiter check; the edit itself runs on its own goroutine.
type Reporter struct {
	editor        Editor
	log           *zap.Logger
	minInterval   time.Duration
	stallInterval time.Duration
	onEmit        func()

	mu   sync.Mutex
	jobs map[string]*jobState
}

// NewReporter creates a reporter. minInterval spaces ordinary updates,
// stallInterval bounds the silence between heartbeats for a stalled job.
func NewReporter(editor Editor, minInterval, stallInterval time.Duration, log *zap.Logger) *Reporter {
	return &Reporter{
		editor:        editor,
		log:           log,
		minInterval:   minInterval,
		stallInterval: stallInterval,
		jobs:          make(map[string]*jobState),
	}
}

// SetEmitHook registers a callback invoked once per outward edit. Used for
// metrics.
func (r *Reporter) SetEmitHook(fn func()) {
	r.onEmit = fn
}

// Track starts progress tracking for a running job and launches its stall
// heartbeat. Must be paired with Done.
func (r *Reporter) Track(job *model.Job) {
	now := time.Now()
	st := &jobState{
		chatID:       job.ChatID,
		messageID:    job.StatusMessageID,
		limiter:      rate.NewLimiter(rate.Every(r.minInterval), 1),
		stage:        StageDownload,
		lastPercent:  -1,
		lastEmitted:  now,
		lastProgress: now,
		stop:         make(chan struct{}),
	}

	r.mu.Lock()
	r.jobs[job.ID] = st
	r.mu.Unlock()

	go r.heartbeat(st)
}

// Done stops tracking a job. Further OnProgress calls for it are ignored.
func (r *Reporter) Done(jobID string) {
	r.mu.Lock()
	st, ok := r.jobs[jobID]
	if ok {
		delete(r.jobs, jobID)
	}
	r.mu.Unlock()

	if ok {
		close(st.stop)
	}
}

// OnProgress is invoked by the downloader, possibly at high frequency. It
// never blocks: the limiter check is O(1) and the edit is dispatched
// asynchronously.
func (r *Reporter) OnProgress(jobID string, percent float64, stage string) {
	r.mu.Lock()
	st, ok := r.jobs[jobID]
	r.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	if stage != "" {
		st.stage = stage
	}

	if st.stage == StageProcessing {
		st.lastProgress = time.Now()
		if !st.limiter.Allow() {
			st.mu.Unlock()
			return
		}
		st.lastEmitted = time.Now()
		st.mu.Unlock()
		r.emit(st, "Processing...")
		return
	}

	p := int(percent)
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if p == st.lastPercent {
		st.mu.Unlock()
		return
	}
	st.lastProgress = time.Now()
	if !st.limiter.Allow() {
		st.mu.Unlock()
		return
	}
	st.lastPercent = p
	st.lastEmitted = time.Now()
	st.mu.Unlock()

	r.emit(st, fmt.Sprintf("Downloading... %d%%", p))
}

// heartbeat guarantees an update at least every stall interval even when the
// downloader reports nothing new.
func (r *Reporter) heartbeat(st *jobState) {
	ticker := time.NewTicker(r.stallInterval)
	defer ticker.Stop()

	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			st.mu.Lock()
			now := time.Now()
			if now.Sub(st.lastEmitted) < r.stallInterval {
				st.mu.Unlock()
				continue
			}
			stalled := int(now.Sub(st.lastProgress).Seconds())
			text := stallText(st.stage, st.lastPercent, stalled)
			st.lastEmitted = now
			st.mu.Unlock()

			r.emit(st, text)
		}
	}
}

func stallText(stage string, lastPercent, stalledSec int) string {
	mins, secs := stalledSec/60, stalledSec%60
	if stage == StageProcessing {
		return fmt.Sprintf("Processing... (no progress for %d:%02d)", mins, secs)
	}
	if lastPercent <= 0 {
		return "Downloading..."
	}
	return fmt.Sprintf("Downloading... %d%% (no progress for %d:%02d)", lastPercent, mins, secs)
}

// emit sends the edit without waiting for it. Failures are logged and
// swallowed: progress is best-effort and must never abort a download.
func (r *Reporter) emit(st *jobState, text string) {
	if r.onEmit != nil {
		r.onEmit()
	}
	go func() {
		if err := r.editor.EditStatus(st.chatID, st.messageID, text); err != nil {
			r.log.Debug("progress edit failed",
				zap.Int64("chat_id", st.chatID),
				zap.Int("message_id", st.messageID),
				zap.Error(err))
		}
	}()
}
