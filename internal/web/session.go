package web

// session.go keeps one generation workflow per browser. A session is
// identified by an opaque cookie; it owns its Workflow, the result of its most
// recent submission and the bytes of any download that submission produced.
// Sessions idle longer than the TTL are dropped by a background sweep.

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/synthgen/internal/core"
	"github.com/JonMunkholm/synthgen/internal/web/templates"
)

const sessionCookieName = "synthgen_session"

// download is a generated CSV held for the browser to fetch.
type download struct {
	name    string
	content []byte
}

// session is one browser's generator state.
type session struct {
	id string
	wf *core.Workflow

	mu       sync.Mutex
	lastSeen time.Time
	pending  *download // Written by Save during Submit, claimed afterwards
	files    map[string]download
	result   *templates.ResultView
	banner   *templates.Banner
}

// Save implements core.Saver by holding the content in memory until the
// submission that produced it is claimed.
func (s *session) Save(ctx context.Context, name string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &download{name: name, content: content}
	return name, nil
}

// claim files the pending download under the submission id. Only the latest
// download is kept.
func (s *session) claim(id string) (download, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return download{}, false
	}
	d := *s.pending
	s.pending = nil
	s.files = map[string]download{id: d}
	return d, true
}

func (s *session) file(id string) (download, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.files[id]
	return d, ok
}

// setView stores what the page shows for the last submission.
func (s *session) setView(result *templates.ResultView, banner *templates.Banner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = result
	s.banner = banner
}

func (s *session) view() (*templates.ResultView, *templates.Banner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.banner
}

// reset drops the last result, used when the model changes.
func (s *session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = nil
	s.banner = nil
	s.pending = nil
	s.files = nil
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// sessionStore maps cookie ids to sessions.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	secure   bool
	newFlow  func(s *session) *core.Workflow
	now      func() time.Time
}

func newSessionStore(ttl time.Duration, newFlow func(s *session) *core.Workflow) *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*session),
		ttl:      ttl,
		newFlow:  newFlow,
		now:      time.Now,
	}
}

// get returns the caller's session, creating one and setting the cookie when
// the request carries no known id.
func (st *sessionStore) get(w http.ResponseWriter, r *http.Request) *session {
	now := st.now()
	if c, err := r.Cookie(sessionCookieName); err == nil {
		st.mu.Lock()
		sess, ok := st.sessions[c.Value]
		st.mu.Unlock()
		if ok {
			sess.touch(now)
			return sess
		}
	}

	sess := &session{id: uuid.NewString(), lastSeen: now}
	sess.wf = st.newFlow(sess)

	st.mu.Lock()
	st.sessions[sess.id] = sess
	st.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		Secure:   st.secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

// Len returns the number of live sessions.
func (st *sessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// sweep removes sessions idle past the TTL. A session with a request in
// flight is kept regardless of age.
func (st *sessionStore) sweep() int {
	cutoff := st.now().Add(-st.ttl)

	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, sess := range st.sessions {
		if sess.idleSince().After(cutoff) {
			continue
		}
		if state := sess.wf.State(); state == core.StateValidating || state == core.StateSubmitting {
			continue
		}
		delete(st.sessions, id)
		removed++
	}
	return removed
}

// run sweeps every interval until stop is closed.
func (st *sessionStore) run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			st.sweep()
		}
	}
}
