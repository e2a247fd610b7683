package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ytget/tg-downloader/internal/model"
)

var (
	ErrInvalidCandidates = errors.New("selection requires at least one candidate")
	ErrSessionNotFound   = errors.New("selection session not found")
	ErrSessionExpired    = errors.New("selection session expired")
	ErrInvalidChoice     = errors.New("value is not among the session candidates")
	ErrNotYourSession    = errors.New("selection belongs to a different requester")
)

// Kind distinguishes what a session is asking the user to pick.
type Kind string

const (
	KindPlaylist Kind = "playlist"
	KindQuality  Kind = "quality"
)

// Session is one pending interactive choice tied to a single chat message.
// It also carries the request context the resolver needs to build a job.
type Session struct {
	ID          string
	ChatID      int64
	MessageID   int
	RequesterID int64
	Kind        Kind
	Candidates  []model.Candidate
	PageSize    int

	SourceURL    string
	PlaylistItem int                   // carried from the playlist stage into the quality stage
	Entries      []model.PlaylistEntry // probe context for resolving a playlist pick

	CreatedAt time.Time
	Deadline  time.Time
}

// Page is one keyboard page of candidates.
type Page struct {
	Candidates []model.Candidate
	Index      int
	Count      int
	HasPrev    bool
	HasNext    bool
}

type key struct {
	chatID    int64
	messageID int
}

// Store keeps selection sessions in memory with internally synchronized
// access. At most one session exists per (chat, message) key; TTL is enforced
// lazily on every access, so correctness never depends on sweep cadence.
type Store struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	byID map[string]*Session
	byKey map[key]string
}

// NewStore creates a store whose sessions expire ttl after creation.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:   ttl,
		now:   time.Now,
		byID:  make(map[string]*Session),
		byKey: make(map[key]string),
	}
}

// SetClock overrides the time source. Tests use it to cross TTL deadlines
// without sleeping.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create registers a new session and returns its id. An existing session for
// the same (chat, message) key is evicted and replaced so no stale reference
// to it remains reachable.
func (s *Store) Create(sess Session) (string, error) {
	if len(sess.Candidates) == 0 {
		return "", ErrInvalidCandidates
	}
	if sess.PageSize <= 0 {
		sess.PageSize = len(sess.Candidates)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess.ID = uuid.New().String()
	sess.CreatedAt = now
	sess.Deadline = now.Add(s.ttl)

	k := key{chatID: sess.ChatID, messageID: sess.MessageID}
	if prevID, ok := s.byKey[k]; ok {
		delete(s.byID, prevID)
	}
	s.byKey[k] = sess.ID
	s.byID[sess.ID] = &sess

	return sess.ID, nil
}

// Peek returns a copy of a live session. Expired sessions are removed and
// reported as such.
func (s *Store) Peek(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.locked(id)
	if err != nil {
		return Session{}, err
	}
	return *sess, nil
}

// GetPage returns one page of candidates. pageIndex is clamped to the valid
// range; the call never mutates the session.
func (s *Store) GetPage(id string, pageIndex int) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.locked(id)
	if err != nil {
		return Page{}, err
	}

	total := len(sess.Candidates)
	pageCount := (total + sess.PageSize - 1) / sess.PageSize
	if pageCount < 1 {
		pageCount = 1
	}
	if pageIndex < 0 {
		pageIndex = 0
	}
	if pageIndex > pageCount-1 {
		pageIndex = pageCount - 1
	}

	start := pageIndex * sess.PageSize
	end := start + sess.PageSize
	if end > total {
		end = total
	}

	page := Page{
		Candidates: append([]model.Candidate(nil), sess.Candidates[start:end]...),
		Index:      pageIndex,
		Count:      pageCount,
		HasPrev:    pageIndex > 0,
		HasNext:    pageIndex < pageCount-1,
	}
	return page, nil
}

// Resolve consumes the session: on success the session is removed and the
// matched candidate returned together with the session's request context.
// An unknown value leaves the session in place; a repeat call fails with
// ErrSessionNotFound.
func (s *Store) Resolve(id, value string) (Session, model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.locked(id)
	if err != nil {
		return Session{}, model.Candidate{}, err
	}

	for _, c := range sess.Candidates {
		if c.Value == value {
			s.remove(sess)
			return *sess, c, nil
		}
	}
	return Session{}, model.Candidate{}, ErrInvalidChoice
}

// Discard removes a session without resolving it (e.g. the request it belongs
// to was superseded). Absent or expired sessions are ignored.
func (s *Store) Discard(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, err := s.locked(id); err == nil {
		s.remove(sess)
	}
}

// Len returns the number of stored sessions, including not-yet-swept expired
// ones.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// ExpireSweep evicts every session past its deadline and returns how many were
// removed. Lazy checks on access make this purely an optimization.
func (s *Store) ExpireSweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, sess := range s.byID {
		if now.After(sess.Deadline) {
			s.remove(sess)
			removed++
		}
	}
	return removed
}

// locked looks up a session and enforces TTL. Callers must hold s.mu.
func (s *Store) locked(id string) (*Session, error) {
	sess, ok := s.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.now().After(sess.Deadline) {
		s.remove(sess)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

func (s *Store) remove(sess *Session) {
	delete(s.byID, sess.ID)
	k := key{chatID: sess.ChatID, messageID: sess.MessageID}
	if s.byKey[k] == sess.ID {
		delete(s.byKey, k)
	}
}
