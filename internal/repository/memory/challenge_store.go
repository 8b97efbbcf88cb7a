// Package memory holds process-local stores used when no Redis is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"portal-auth/internal/models"
)

// ChallengeStore keeps one OTP challenge per identifier.
type ChallengeStore struct {
	mu    sync.Mutex
	items map[string]models.OtpChallenge
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{items: make(map[string]models.OtpChallenge)}
}

func (s *ChallengeStore) Put(_ context.Context, ch *models.OtpChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[ch.Identifier] = *ch
	return nil
}

func (s *ChallengeStore) Get(_ context.Context, identifier string) (*models.OtpChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.items[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, "otp challenge")
	}
	return &ch, nil
}

func (s *ChallengeStore) Delete(_ context.Context, identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[identifier]; !ok {
		return false, nil
	}
	delete(s.items, identifier)
	return true, nil
}
