package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/obs"
)

const defaultSessionTTL = 12 * time.Hour

// Store keeps billing sessions in memory. A session expires after TTL
// without access; every Get extends it.
type Store struct {
	TTL time.Duration
	Now func() time.Time

	mu       sync.Mutex
	sessions map[string]*storeEntry
}

type storeEntry struct {
	session *Session
	expires time.Time
}

// NewStore constructs an empty store.
func NewStore(ttl time.Duration) *Store {
	return &Store{TTL: ttl, Now: time.Now, sessions: make(map[string]*storeEntry)}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return defaultSessionTTL
	}
	return s.TTL
}

// Create registers a new empty session.
func (s *Store) Create() *Session {
	now := s.now()
	sess := newSession(uuid.NewString(), now)
	s.mu.Lock()
	if s.sessions == nil {
		s.sessions = make(map[string]*storeEntry)
	}
	s.sessions[sess.ID] = &storeEntry{session: sess, expires: now.Add(s.ttl())}
	n := len(s.sessions)
	s.mu.Unlock()
	obs.SetActiveSessions(n)
	return sess
}

// Get returns the session with id and extends its lifetime.
func (s *Store) Get(id string) (*Session, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok || !now.Before(entry.expires) {
		return nil, ErrSessionNotFound
	}
	entry.expires = now.Add(s.ttl())
	return entry.session, nil
}

// Delete discards the session. It reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	obs.SetActiveSessions(n)
	return ok
}

// Len returns the number of stored sessions, expired ones included until swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	removed := 0
	for id, entry := range s.sessions {
		if !now.Before(entry.expires) {
			delete(s.sessions, id)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()
	obs.SetActiveSessions(n)
	return removed
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
