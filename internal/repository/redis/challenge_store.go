package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"portal-auth/internal/client"
	"portal-auth/internal/models"
	"portal-auth/internal/util"

	"go.uber.org/zap"
)

const (
	otpPrefix = "otp:"

	// keys outlive the challenge so a late read still reports expiry
	expiryGrace = time.Minute
	opTimeout   = 5 * time.Second
)

// ChallengeStore keeps OTP challenges as JSON values keyed by identifier.
type ChallengeStore struct {
	client *client.RedisClient
	now    func() time.Time
}

func NewChallengeStore(client *client.RedisClient) *ChallengeStore {
	return &ChallengeStore{client: client, now: time.Now}
}

func (s *ChallengeStore) Put(ctx context.Context, ch *models.OtpChallenge) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}

	ttl := max(ch.ExpiresAt.Sub(s.now()), 0) + expiryGrace
	if err := s.client.Set(ctx, otpPrefix+ch.Identifier, payload, ttl); err != nil {
		util.Error("Failed to store OTP challenge", zap.Duration("ttl", ttl), zap.Error(err))
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

func (s *ChallengeStore) Get(ctx context.Context, identifier string) (*models.OtpChallenge, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, otpPrefix+identifier)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: otp challenge", models.ErrNotFound)
		}
		util.Error("Failed to read OTP challenge", zap.Error(err))
		return nil, fmt.Errorf("failed to read challenge: %w", err)
	}

	var ch models.OtpChallenge
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}
	return &ch, nil
}

// Delete relies on DEL's reply count, so only one of several racing
// consumers sees true.
func (s *ChallengeStore) Delete(ctx context.Context, identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.client.Del(ctx, otpPrefix+identifier)
	if err != nil {
		util.Error("Failed to delete OTP challenge", zap.Error(err))
		return false, fmt.Errorf("failed to delete challenge: %w", err)
	}
	return n > 0, nil
}
