package memory

import (
	"context"
	"sync"
	"time"

	"portal-auth/internal/models"
)

const (
	sweepThreshold = 1024
	sweepInterval  = time.Minute
)

// SessionStore keeps sessions in a map. Idle sessions expire on read, and
// Save sweeps abandoned ones once the map grows past sweepThreshold.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]models.Session
	idleTTL   time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewSessionStore(idleTTL time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]models.Session),
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

func (s *SessionStore) Get(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrSessionNotFound
	}

	if sess.IdleExpired(s.now(), s.idleTTL) {
		s.mu.Lock()
		// recheck: a concurrent Save may have refreshed it
		if cur, ok := s.sessions[id]; ok && cur.IdleExpired(s.now(), s.idleTTL) {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
		return nil, models.ErrSessionNotFound
	}
	return &sess, nil
}

func (s *SessionStore) Save(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess

	if now := s.now(); len(s.sessions) > sweepThreshold && now.Sub(s.lastSweep) >= sweepInterval {
		s.sweep(now)
	}
	return nil
}

// Len reports how many sessions are held, expired or not.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// sweep drops idle sessions. Callers hold mu.
func (s *SessionStore) sweep(now time.Time) {
	s.lastSweep = now
	if s.idleTTL <= 0 {
		return
	}
	for id, sess := range s.sessions {
		if sess.IdleExpired(now, s.idleTTL) {
			delete(s.sessions, id)
		}
	}
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
