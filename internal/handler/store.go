// Package handler implements the fiber HTTP/SSE transport surface
// (spec.md §6): the research request endpoint and the reconnect endpoint,
// plus the in-process session registry reconnect needs to find a live
// session by id.
package handler

import (
	"sync"
	"time"

	"researchagent/internal/agent/session"
)

// SessionStore holds every session started by this process, keyed by id,
// so the reconnect endpoint (spec.md §6: "(sessionId, lastEventId)") can
// find one after the handler goroutine that created it has returned.
// Sweep prunes closed sessions registered more than ttl ago. Entries are
// only pruned when Sweep is called; the store does not call it itself,
// and cmd/server does not schedule it.
type SessionStore struct {
	ttl time.Duration

	mu    sync.Mutex
	byID  map[string]*session.Session
	added map[string]time.Time
}

// NewSessionStore creates a store whose Sweep drops closed sessions
// registered more than ttl ago. Callers pass config.Config.StaleSessionTTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:   ttl,
		byID:  make(map[string]*session.Session),
		added: make(map[string]time.Time),
	}
}

// Put registers sess under its own id.
func (s *SessionStore) Put(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sess.ID()] = sess
	s.added[sess.ID()] = time.Now()
}

// Get looks up a session by id.
func (s *SessionStore) Get(id string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	return sess, ok
}

// Sweep removes sessions that are closed and were registered by Put more
// than ttl ago; the age is counted from registration, not from the
// moment the session closed. Open sessions are never removed.
func (s *SessionStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, sess := range s.byID {
		if !sess.IsClosed() {
			continue
		}
		if now.Sub(s.added[id]) > s.ttl {
			delete(s.byID, id)
			delete(s.added, id)
		}
	}
}
