package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ytget/tg-downloader/internal/download"
	"github.com/ytget/tg-downloader/internal/metrics"
	"github.com/ytget/tg-downloader/internal/model"
	"github.com/ytget/tg-downloader/internal/queue"
	"github.com/ytget/tg-downloader/internal/session"
)

// Op is the decoded intent of a keyboard callback.
type Op string

const (
	OpPage Op = "page" // navigate to Page
	OpPick Op = "pick" // resolve the session with Value
	OpNoop Op = "noop" // decorative button, acknowledge only
)

// URLEvent is a chat message that carries a link.
type URLEvent struct {
	ChatID int64
	UserID int64
	URL    string
}

// CallbackEvent is a decoded keyboard press.
type CallbackEvent struct {
	CallbackID string
	ChatID     int64
	UserID     int64
	MessageID  int
	SessionID  string
	Op         Op
	Page       int
	Value      string
}

// UI is the outward chat surface the dispatcher drives. All methods address
// messages the service itself posted.
type UI interface {
	SendText(ctx context.Context, chatID int64, text string) (messageID int, err error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	ShowSelection(ctx context.Context, chatID int64, messageID int, sessionID string, kind session.Kind, page session.Page) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

const (
	textAnalyzing  = "Analyzing the link..."
	textInvalidURL = "Please send a valid http(s) link."
	textExpired    = "This selection has expired. Please send the link again."
	textNotYours   = "This selection belongs to another user."
)

// Dispatcher converts URL messages and keyboard callbacks into selection
// sessions and queued jobs.
type Dispatcher struct {
	downloader download.Downloader
	sessions   *session.Store
	queue      *queue.Queue
	ui         UI
	log        *zap.Logger
	metrics    *metrics.Metrics
	pageSize   int
}

// NewDispatcher wires the ingress side of the pipeline.
func NewDispatcher(dl download.Downloader, sessions *session.Store, q *queue.Queue, ui UI, pageSize int, log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		downloader: dl,
		sessions:   sessions,
		queue:      q,
		ui:         ui,
		log:        log,
		metrics:    m,
		pageSize:   pageSize,
	}
}

// HandleURL probes a link and either starts an interactive selection or
// enqueues a job right away.
func (d *Dispatcher) HandleURL(ctx context.Context, ev URLEvent) {
	if !download.IsValidURL(ev.URL) {
		if _, err := d.ui.SendText(ctx, ev.ChatID, textInvalidURL); err != nil {
			d.log.Debug("send failed", zap.Error(err))
		}
		return
	}

	msgID, err := d.ui.SendText(ctx, ev.ChatID, textAnalyzing)
	if err != nil {
		d.log.Warn("cannot post status message", zap.Int64("chat_id", ev.ChatID), zap.Error(err))
		return
	}

	probe, err := d.downloader.Probe(ctx, ev.URL)
	if err != nil {
		d.log.Warn("probe failed", zap.String("url", ev.URL), zap.Error(err))
		d.edit(ctx, ev.ChatID, msgID, unsupportedText(ev.URL))
		return
	}

	if len(probe.Entries) > 1 {
		d.promptPlaylist(ctx, ev, msgID, probe.Entries)
		return
	}

	item := 0
	if len(probe.Entries) == 1 {
		item = probe.Entries[0].Index
	}
	if len(probe.Heights) >= 2 {
		d.promptQuality(ctx, ev.ChatID, ev.UserID, msgID, ev.URL, item, probe.Heights)
		return
	}
	d.enqueue(ctx, ev.ChatID, ev.UserID, msgID, ev.URL, item, 0)
}

// HandleCallback reacts to a keyboard press on a selection message.
func (d *Dispatcher) HandleCallback(ctx context.Context, ev CallbackEvent) {
	sess, err := d.sessions.Peek(ev.SessionID)
	if err != nil {
		d.expired(ctx, ev)
		return
	}
	if sess.RequesterID != 0 && ev.UserID != sess.RequesterID {
		d.answer(ctx, ev.CallbackID, textNotYours)
		return
	}

	switch ev.Op {
	case OpNoop:
		d.answer(ctx, ev.CallbackID, "")
	case OpPage:
		page, err := d.sessions.GetPage(ev.SessionID, ev.Page)
		if err != nil {
			d.expired(ctx, ev)
			return
		}
		d.answer(ctx, ev.CallbackID, "")
		if err := d.ui.ShowSelection(ctx, ev.ChatID, ev.MessageID, ev.SessionID, sess.Kind, page); err != nil {
			d.log.Debug("keyboard update failed", zap.Error(err))
		}
	case OpPick:
		d.pick(ctx, ev)
	default:
		d.answer(ctx, ev.CallbackID, "")
	}
}

func (d *Dispatcher) pick(ctx context.Context, ev CallbackEvent) {
	sess, cand, err := d.sessions.Resolve(ev.SessionID, ev.Value)
	switch {
	case errors.Is(err, session.ErrInvalidChoice):
		d.answer(ctx, ev.CallbackID, "Unknown option.")
		return
	case err != nil:
		d.expired(ctx, ev)
		return
	}
	d.answer(ctx, ev.CallbackID, "")

	switch sess.Kind {
	case session.KindPlaylist:
		d.resolvePlaylistPick(ctx, ev, sess, cand)
	case session.KindQuality:
		maxHeight := 0
		if cand.Value != "best" {
			if h, err := strconv.Atoi(cand.Value); err == nil {
				maxHeight = h
			}
		}
		d.enqueue(ctx, ev.ChatID, ev.UserID, ev.MessageID, sess.SourceURL, sess.PlaylistItem, maxHeight)
	}
}

// resolvePlaylistPick probes the chosen entry for a quality follow-up, or
// enqueues directly when there is nothing to choose.
func (d *Dispatcher) resolvePlaylistPick(ctx context.Context, ev CallbackEvent, sess session.Session, cand model.Candidate) {
	item, err := strconv.Atoi(cand.Value)
	if err != nil {
		d.log.Error("playlist candidate with non-numeric value", zap.String("value", cand.Value))
		d.edit(ctx, ev.ChatID, ev.MessageID, textExpired)
		return
	}

	var heights []int
	if entryURL := entryURLByIndex(sess.Entries, item); entryURL != "" {
		if probe, err := d.downloader.Probe(ctx, entryURL); err == nil {
			heights = probe.Heights
		} else {
			d.log.Debug("entry probe failed, downloading best", zap.String("url", entryURL), zap.Error(err))
		}
	}

	if len(heights) >= 2 {
		d.promptQuality(ctx, ev.ChatID, ev.UserID, ev.MessageID, sess.SourceURL, item, heights)
		return
	}
	d.enqueue(ctx, ev.ChatID, ev.UserID, ev.MessageID, sess.SourceURL, item, 0)
}

func (d *Dispatcher) promptPlaylist(ctx context.Context, ev URLEvent, msgID int, entries []model.PlaylistEntry) {
	candidates := make([]model.Candidate, 0, len(entries))
	for _, e := range entries {
		candidates = append(candidates, model.Candidate{
			Label: e.DisplayLabel(),
			Value: strconv.Itoa(e.Index),
		})
	}

	id, err := d.sessions.Create(session.Session{
		ChatID:      ev.ChatID,
		MessageID:   msgID,
		RequesterID: ev.UserID,
		Kind:        session.KindPlaylist,
		Candidates:  candidates,
		PageSize:    d.pageSize,
		SourceURL:   ev.URL,
		Entries:     entries,
	})
	if err != nil {
		d.log.Error("playlist session create failed", zap.Error(err))
		d.edit(ctx, ev.ChatID, msgID, unsupportedText(ev.URL))
		return
	}

	page, err := d.sessions.GetPage(id, 0)
	if err != nil {
		d.log.Error("fresh session page unavailable", zap.Error(err))
		return
	}
	if err := d.ui.ShowSelection(ctx, ev.ChatID, msgID, id, session.KindPlaylist, page); err != nil {
		d.log.Warn("selection prompt failed", zap.Error(err))
	}
}

func (d *Dispatcher) promptQuality(ctx context.Context, chatID, userID int64, msgID int, url string, item int, heights []int) {
	candidates := qualityCandidates(heights)

	id, err := d.sessions.Create(session.Session{
		ChatID:       chatID,
		MessageID:    msgID,
		RequesterID:  userID,
		Kind:         session.KindQuality,
		Candidates:   candidates,
		PageSize:     d.pageSize,
		SourceURL:    url,
		PlaylistItem: item,
	})
	if err != nil {
		d.log.Error("quality session create failed", zap.Error(err))
		d.enqueue(ctx, chatID, userID, msgID, url, item, 0)
		return
	}

	page, err := d.sessions.GetPage(id, 0)
	if err != nil {
		d.log.Error("fresh session page unavailable", zap.Error(err))
		return
	}
	if err := d.ui.ShowSelection(ctx, chatID, msgID, id, session.KindQuality, page); err != nil {
		d.log.Warn("selection prompt failed", zap.Error(err))
	}
}

// enqueue builds the fully specified job and reports its queue position.
func (d *Dispatcher) enqueue(ctx context.Context, chatID, userID int64, msgID int, url string, item, maxHeight int) {
	job := &model.Job{
		ID:              uuid.New().String(),
		ChatID:          chatID,
		RequesterID:     userID,
		SourceURL:       url,
		PlaylistItem:    item,
		MaxHeight:       maxHeight,
		Status:          model.StatusPendingSelection,
		CreatedAt:       time.Now(),
		StatusMessageID: msgID,
	}
	if err := job.Transition(model.StatusQueued); err != nil {
		d.log.Error("job cannot enter the queue", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	pos := d.queue.Enqueue(job)
	if d.metrics != nil {
		d.metrics.QueueDepth.Set(float64(d.queue.Size()))
	}

	d.log.Info("job enqueued",
		zap.String("job_id", job.ID),
		zap.Int64("chat_id", chatID),
		zap.String("url", url),
		zap.Int("playlist_item", item),
		zap.Int("max_height", maxHeight),
		zap.Int("position", pos))

	d.edit(ctx, chatID, msgID, fmt.Sprintf("In queue. Position: %d.\nPlease wait...", pos))
}

func (d *Dispatcher) expired(ctx context.Context, ev CallbackEvent) {
	d.answer(ctx, ev.CallbackID, "")
	d.edit(ctx, ev.ChatID, ev.MessageID, textExpired)
}

func (d *Dispatcher) answer(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if err := d.ui.AnswerCallback(ctx, callbackID, text); err != nil {
		d.log.Debug("callback answer failed", zap.Error(err))
	}
}

func (d *Dispatcher) edit(ctx context.Context, chatID int64, msgID int, text string) {
	if err := d.ui.EditText(ctx, chatID, msgID, text); err != nil {
		d.log.Debug("status edit failed", zap.Error(err))
	}
}

func unsupportedText(url string) string {
	return fmt.Sprintf("This service cannot download from this URL:\n%s\n\nPlease try a different link.", url)
}

// qualityCandidates renders the pickable quality list: best first, then each
// distinct height as a cap.
func qualityCandidates(heights []int) []model.Candidate {
	out := make([]model.Candidate, 0, len(heights)+1)
	out = append(out, model.Candidate{Label: "Best", Value: "best"})
	for _, h := range heights {
		out = append(out, model.Candidate{
			Label: fmt.Sprintf("Up to %dp", h),
			Value: strconv.Itoa(h),
		})
	}
	return out
}

func entryURLByIndex(entries []model.PlaylistEntry, index int) string {
	for _, e := range entries {
		if e.Index == index {
			return e.URL
		}
	}
	return ""
}
