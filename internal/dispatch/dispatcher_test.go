package dispatch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ytget/tg-downloader/internal/download"
	"github.com/ytget/tg-downloader/internal/model"
	"github.com/ytget/tg-downloader/internal/queue"
	"github.com/ytget/tg-downloader/internal/session"
)

type fakeDownloader struct {
	mu      sync.Mutex
	probes  []string
	results map[string]model.ProbeResult
	err     error
}

func (d *fakeDownloader) Probe(ctx context.Context, url string) (model.ProbeResult, error) {
	d.mu.Lock()
	d.probes = append(d.probes, url)
	d.mu.Unlock()
	if d.err != nil {
		return model.ProbeResult{}, d.err
	}
	return d.results[url], nil
}

func (d *fakeDownloader) Fetch(ctx context.Context, req download.FetchRequest, onProgress download.ProgressFunc) (model.Artifact, error) {
	return model.Artifact{}, nil
}

type shownSelection struct {
	messageID int
	sessionID string
	kind      session.Kind
	page      session.Page
}

type fakeUI struct {
	mu         sync.Mutex
	nextMsgID  int
	sent       []string
	edits      []string
	selections []shownSelection
	answers    []string
}

func (u *fakeUI) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.nextMsgID++
	u.sent = append(u.sent, text)
	return u.nextMsgID, nil
}

func (u *fakeUI) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.edits = append(u.edits, text)
	return nil
}

func (u *fakeUI) ShowSelection(ctx context.Context, chatID int64, messageID int, sessionID string, kind session.Kind, page session.Page) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.selections = append(u.selections, shownSelection{messageID: messageID, sessionID: sessionID, kind: kind, page: page})
	return nil
}

func (u *fakeUI) AnswerCallback(ctx context.Context, callbackID, text string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.answers = append(u.answers, text)
	return nil
}

func (u *fakeUI) lastEdit(t *testing.T) string {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.edits) == 0 {
		t.Fatal("no edits recorded")
	}
	return u.edits[len(u.edits)-1]
}

func (u *fakeUI) lastSelection(t *testing.T) shownSelection {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.selections) == 0 {
		t.Fatal("no selection prompts recorded")
	}
	return u.selections[len(u.selections)-1]
}

func newDispatcher(dl *fakeDownloader, ui *fakeUI) (*Dispatcher, *session.Store, *queue.Queue) {
	store := session.NewStore(time.Hour)
	q := queue.New()
	d := NewDispatcher(dl, store, q, ui, 10, zap.NewNop(), nil)
	return d, store, q
}

func TestHandleURL_RejectsNonHTTP(t *testing.T) {
	dl := &fakeDownloader{}
	ui := &fakeUI{}
	d, _, q := newDispatcher(dl, ui)

	d.HandleURL(context.Background(), URLEvent{ChatID: 1, UserID: 7, URL: "ftp://example.com/file"})

	if len(dl.probes) != 0 {
		t.Error("invalid URL should not be probed")
	}
	if q.Size() != 0 {
		t.Error("invalid URL must not enqueue")
	}
	if len(ui.sent) != 1 || ui.sent[0] != textInvalidURL {
		t.Errorf("sent = %v, expected the invalid-link hint", ui.sent)
	}
}

func TestHandleURL_ProbeFailureReportsOnce(t *testing.T) {
	dl := &fakeDownloader{err: &download.DownloadError{Diagnostic: "unsupported"}}
	ui := &fakeUI{}
	d, store, q := newDispatcher(dl, ui)

	d.HandleURL(context.Background(), URLEvent{ChatID: 1, UserID: 7, URL: "https://example.com/broken"})

	if q.Size() != 0 || store.Len() != 0 {
		t.Error("failed probe must leave no job and no session")
	}
	if got := ui.lastEdit(t); !strings.Contains(got, "https://example.com/broken") {
		t.Errorf("failure edit %q does not name the URL", got)
	}
}

func TestHandleURL_DirectEnqueue(t *testing.T) {
	url := "https://example.com/v/1"
	dl := &fakeDownloader{results: map[string]model.ProbeResult{
		url: {Heights: []int{720}},
	}}
	ui := &fakeUI{}
	d, store, q := newDispatcher(dl, ui)

	d.HandleURL(context.Background(), URLEvent{ChatID: 5, UserID: 7, URL: url})

	if store.Len() != 0 {
		t.Error("single-height probe should not open a session")
	}
	if q.Size() != 1 {
		t.Fatalf("queue size = %d, expected 1", q.Size())
	}
	job := q.Snapshot()[0]
	if job.Status != model.StatusQueued {
		t.Errorf("job status = %s, expected queued", job.Status)
	}
	if job.SourceURL != url || job.MaxHeight != 0 || job.ChatID != 5 || job.RequesterID != 7 {
		t.Errorf("job fields = %+v", job)
	}
	if got := ui.lastEdit(t); !strings.Contains(got, "Position: 1") {
		t.Errorf("queue edit = %q, expected position 1", got)
	}
}

func TestHandleURL_QualityPrompt(t *testing.T) {
	url := "https://example.com/v/2"
	dl := &fakeDownloader{results: map[string]model.ProbeResult{
		url: {Heights: []int{1080, 720, 480}},
	}}
	ui := &fakeUI{}
	d, store, q := newDispatcher(dl, ui)

	d.HandleURL(context.Background(), URLEvent{ChatID: 5, UserID: 7, URL: url})

	if q.Size() != 0 {
		t.Error("quality choice pending, nothing should be queued yet")
	}
	if store.Len() != 1 {
		t.Fatalf("sessions = %d, expected 1", store.Len())
	}
	sel := ui.lastSelection(t)
	if sel.kind != session.KindQuality {
		t.Errorf("selection kind = %s", sel.kind)
	}
	labels := make([]string, 0, len(sel.page.Candidates))
	for _, c := range sel.page.Candidates {
		labels = append(labels, c.Label)
	}
	want := []string{"Best", "Up to 1080p", "Up to 720p", "Up to 480p"}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v, expected %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("label[%d] = %q, expected %q", i, labels[i], want[i])
		}
	}
}

func playlistProbe(url string) map[string]model.ProbeResult {
	return map[string]model.ProbeResult{
		url: {
			Entries: []model.PlaylistEntry{
				{Index: 1, Title: "first", URL: "https://example.com/e/1"},
				{Index: 2, Title: "second", URL: "https://example.com/e/2"},
				{Index: 3, Title: "third", URL: "https://example.com/e/3"},
			},
			Heights: []int{720},
		},
		"https://example.com/e/2": {Heights: []int{1080, 480}},
		"https://example.com/e/3": {Heights: []int{360}},
	}
}

func TestPlaylistPick_LeadsToQualityThenEnqueue(t *testing.T) {
	url := "https://example.com/playlist?list=a"
	dl := &fakeDownloader{results: playlistProbe(url)}
	ui := &fakeUI{}
	d, store, q := newDispatcher(dl, ui)
	ctx := context.Background()

	d.HandleURL(ctx, URLEvent{ChatID: 5, UserID: 7, URL: url})

	sel := ui.lastSelection(t)
	if sel.kind != session.KindPlaylist {
		t.Fatalf("selection kind = %s, expected playlist", sel.kind)
	}

	// Pick entry 2: it has two heights, so a quality stage follows.
	d.HandleCallback(ctx, CallbackEvent{
		CallbackID: "cb1", ChatID: 5, UserID: 7, MessageID: sel.messageID,
		SessionID: sel.sessionID, Op: OpPick, Value: "2",
	})

	qsel := ui.lastSelection(t)
	if qsel.kind != session.KindQuality {
		t.Fatalf("follow-up kind = %s, expected quality", qsel.kind)
	}
	if store.Len() != 1 {
		t.Errorf("sessions = %d, the playlist session should be consumed", store.Len())
	}

	d.HandleCallback(ctx, CallbackEvent{
		CallbackID: "cb2", ChatID: 5, UserID: 7, MessageID: qsel.messageID,
		SessionID: qsel.sessionID, Op: OpPick, Value: "480",
	})

	if store.Len() != 0 {
		t.Error("all sessions should be consumed")
	}
	if q.Size() != 1 {
		t.Fatalf("queue size = %d, expected 1", q.Size())
	}
	job := q.Snapshot()[0]
	if job.PlaylistItem != 2 || job.MaxHeight != 480 || job.SourceURL != url {
		t.Errorf("job = %+v, expected item 2 capped at 480 for %s", job, url)
	}
}

func TestPlaylistPick_SingleHeightEnqueuesDirectly(t *testing.T) {
	url := "https://example.com/playlist?list=a"
	dl := &fakeDownloader{results: playlistProbe(url)}
	ui := &fakeUI{}
	d, store, q := newDispatcher(dl, ui)
	ctx := context.Background()

	d.HandleURL(ctx, URLEvent{ChatID: 5, UserID: 7, URL: url})
	sel := ui.lastSelection(t)

	d.HandleCallback(ctx, CallbackEvent{
		CallbackID: "cb", ChatID: 5, UserID: 7, MessageID: sel.messageID,
		SessionID: sel.sessionID, Op: OpPick, Value: "3",
	})

	if store.Len() != 0 {
		t.Error("no quality stage expected for a single height")
	}
	if q.Size() != 1 {
		t.Fatalf("queue size = %d, expected 1", q.Size())
	}
	job := q.Snapshot()[0]
	if job.PlaylistItem != 3 || job.MaxHeight != 0 {
		t.Errorf("job = %+v, expected item 3 at best quality", job)
	}
}

func TestCallback_PagingKeepsSession(t *testing.T) {
	url := "https://example.com/playlist?list=a"
	dl := &fakeDownloader{results: playlistProbe(url)}
	ui := &fakeUI{}
	d, store, _ := newDispatcher(dl, ui)
	// Force paging with a tiny page size.
	d.pageSize = 2
	ctx := context.Background()

	d.HandleURL(ctx, URLEvent{ChatID: 5, UserID: 7, URL: url})
	sel := ui.lastSelection(t)
	if !sel.page.HasNext {
		t.Fatal("expected a second page")
	}

	d.HandleCallback(ctx, CallbackEvent{
		CallbackID: "cb", ChatID: 5, UserID: 7, MessageID: sel.messageID,
		SessionID: sel.sessionID, Op: OpPage, Page: 1,
	})

	next := ui.lastSelection(t)
	if next.page.Index != 1 {
		t.Errorf("page index = %d, expected 1", next.page.Index)
	}
	if store.Len() != 1 {
		t.Error("paging must not consume the session")
	}
}

func TestCallback_ExpiredSession(t *testing.T) {
	dl := &fakeDownloader{}
	ui := &fakeUI{}
	d, _, _ := newDispatcher(dl, ui)

	d.HandleCallback(context.Background(), CallbackEvent{
		CallbackID: "cb", ChatID: 5, UserID: 7, MessageID: 3,
		SessionID: "gone", Op: OpPick, Value: "1",
	})

	if got := ui.lastEdit(t); got != textExpired {
		t.Errorf("edit = %q, expected the expiry notice", got)
	}
}

func TestCallback_ForeignRequesterRejected(t *testing.T) {
	url := "https://example.com/v/2"
	dl := &fakeDownloader{results: map[string]model.ProbeResult{
		url: {Heights: []int{1080, 720}},
	}}
	ui := &fakeUI{}
	d, store, q := newDispatcher(dl, ui)
	ctx := context.Background()

	d.HandleURL(ctx, URLEvent{ChatID: 5, UserID: 7, URL: url})
	sel := ui.lastSelection(t)

	d.HandleCallback(ctx, CallbackEvent{
		CallbackID: "cb", ChatID: 5, UserID: 99, MessageID: sel.messageID,
		SessionID: sel.sessionID, Op: OpPick, Value: "best",
	})

	if q.Size() != 0 {
		t.Error("foreign requester must not resolve the selection")
	}
	if store.Len() != 1 {
		t.Error("the session must survive a foreign press")
	}
	if len(ui.answers) == 0 || ui.answers[len(ui.answers)-1] != textNotYours {
		t.Errorf("answers = %v, expected the ownership notice", ui.answers)
	}
}

func TestCallback_InvalidChoiceKeepsSession(t *testing.T) {
	url := "https://example.com/v/2"
	dl := &fakeDownloader{results: map[string]model.ProbeResult{
		url: {Heights: []int{1080, 720}},
	}}
	ui := &fakeUI{}
	d, store, q := newDispatcher(dl, ui)
	ctx := context.Background()

	d.HandleURL(ctx, URLEvent{ChatID: 5, UserID: 7, URL: url})
	sel := ui.lastSelection(t)

	d.HandleCallback(ctx, CallbackEvent{
		CallbackID: "cb", ChatID: 5, UserID: 7, MessageID: sel.messageID,
		SessionID: sel.sessionID, Op: OpPick, Value: "4320",
	})

	if q.Size() != 0 {
		t.Error("an unknown value must not enqueue")
	}
	if store.Len() != 1 {
		t.Error("an unknown value must keep the session for a retry")
	}
}
