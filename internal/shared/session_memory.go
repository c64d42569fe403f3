package shared

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore is an in-process SessionStore partitioned by session id. It
// suits development and tests; records vanish on restart and are shared by no other
// process. Run Janitor to evict abandoned sessions.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemorySessionStore constructs an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

// Get loads a session by id.
func (s *MemorySessionStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Put stores the session.
func (s *MemorySessionStore) Put(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

// Refresh overwrites the session only if it is still stored.
func (s *MemorySessionStore) Refresh(_ context.Context, sess Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return false, nil
	}
	s.sessions[sess.ID] = sess
	return true, nil
}

// Delete removes a session.
func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// DeleteByIdentity removes all sessions of the identity.
func (s *MemorySessionStore) DeleteByIdentity(_ context.Context, identityID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.IdentityID == identityID {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Prune drops sessions that expired before cutoff and returns how many it removed.
func (s *MemorySessionStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Janitor prunes every interval until ctx is done. Expired records are kept for
// retention, matching the Redis store, so clients still see session_expired.
func (s *MemorySessionStore) Janitor(ctx context.Context, interval, retention time.Duration, clock Clock) {
	if clock == nil {
		clock = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Prune(clock().Add(-retention))
		}
	}
}
