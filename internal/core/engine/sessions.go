package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ncbimcp/ncbimcp/internal/core"
)

// DefaultSessionTTL bounds how long a history session is trusted locally.
// NCBI expires history server-side on its own schedule; the store is only a cache.
const DefaultSessionTTL = time.Hour

// SessionStore caches history sessions keyed by database and WebEnv.
//
// A miss is never an error: it tells the caller to resubmit identifiers.
type SessionStore struct {
	TTL   time.Duration
	Clock func() time.Time

	// OnChange observes the number of cached sessions after every mutation.
	OnChange func(size int)

	mu       sync.Mutex
	sessions map[core.SessionKey]core.Session
}

// NewSessionStore returns an empty store with the given staleness window.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		TTL:      ttl,
		sessions: make(map[core.SessionKey]core.Session),
	}
}

// Record stores a session, replacing any entry with the same key.
func (s *SessionStore) Record(session core.Session) {
	if s == nil || !session.Valid() {
		return
	}

	s.mu.Lock()
	now := s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.Database = session.Key().Database
	if s.sessions == nil {
		s.sessions = make(map[core.SessionKey]core.Session)
	}
	s.sessions[session.Key()] = session
	s.evictLocked(now)
	size := len(s.sessions)
	s.mu.Unlock()

	s.notify(size)
}

// Lookup returns the session for the database and WebEnv, if still fresh.
func (s *SessionStore) Lookup(database, webEnv string) (core.Session, bool) {
	if s == nil {
		return core.Session{}, false
	}

	s.mu.Lock()
	before := len(s.sessions)
	s.evictLocked(s.now())
	session, ok := s.sessions[core.NewSessionKey(database, webEnv)]
	size := len(s.sessions)
	s.mu.Unlock()

	if size != before {
		s.notify(size)
	}
	return session, ok
}

// Forget drops a session the remote service no longer recognises.
func (s *SessionStore) Forget(database, webEnv string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.sessions, core.NewSessionKey(database, webEnv))
	size := len(s.sessions)
	s.mu.Unlock()

	s.notify(size)
}

// Evict drops every session older than the staleness window and returns how many were removed.
func (s *SessionStore) Evict() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	before := len(s.sessions)
	s.evictLocked(s.now())
	size := len(s.sessions)
	s.mu.Unlock()

	if removed := before - size; removed > 0 {
		s.notify(size)
		return removed
	}
	return 0
}

// Len returns the number of cached sessions.
func (s *SessionStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// List returns a snapshot of cached sessions, newest first.
func (s *SessionStore) List() []core.Session {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	out := make([]core.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Run evicts stale sessions on every tick until the context ends.
func (s *SessionStore) Run(ctx context.Context, interval time.Duration) {
	if s == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evict()
		}
	}
}

func (s *SessionStore) evictLocked(now time.Time) {
	ttl := s.ttl()
	for key, session := range s.sessions {
		if now.Sub(session.CreatedAt) >= ttl {
			delete(s.sessions, key)
		}
	}
}

func (s *SessionStore) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultSessionTTL
}

func (s *SessionStore) ttlString() string {
	if s == nil {
		return DefaultSessionTTL.String()
	}
	return s.ttl().String()
}

func (s *SessionStore) notify(size int) {
	if s.OnChange != nil {
		s.OnChange(size)
	}
}

func (s *SessionStore) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}
