package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portal-auth/internal/hashing"
	"portal-auth/internal/models"

	"go.uber.org/zap"
)

// Verifier checks a submitted code against the active challenge. It never
// counts attempts.
type Verifier interface {
	// Verify returns nil exactly once per issued code.
	Verify(ctx context.Context, identifier, code string) error
	// Discard drops any active challenge for identifier.
	Discard(ctx context.Context, identifier string) error
}

type LocalVerifier struct {
	store  ChallengeStore
	hasher *hashing.Hasher
	logger *zap.Logger
	now    func() time.Time
}

type VerifierOption func(*LocalVerifier)

func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *LocalVerifier) { v.now = now }
}

func NewLocalVerifier(store ChallengeStore, hasher *hashing.Hasher, logger *zap.Logger, opts ...VerifierOption) *LocalVerifier {
	v := &LocalVerifier{store: store, hasher: hasher, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *LocalVerifier) Verify(ctx context.Context, identifier, code string) error {
	challenge, err := v.store.Get(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: failed to load challenge: %v", models.ErrUpstream, err)
	}

	// expiry wins over a textual match
	if challenge.Expired(v.now()) {
		v.drop(ctx, identifier)
		return fmt.Errorf("%w: issued at %s", models.ErrExpired, challenge.CreatedAt.Format(time.RFC3339))
	}

	ok, err := v.hasher.VerifyOTP(code, challenge.CodeHash)
	if err != nil {
		// the stored hash can no longer be checked (e.g. its pepper is gone)
		v.logger.Warn("Discarding unverifiable challenge", zap.Error(err))
		v.drop(ctx, identifier)
		return fmt.Errorf("%w: %v", models.ErrNotFound, err)
	}
	if !ok {
		return models.ErrMismatch
	}

	deleted, err := v.store.Delete(ctx, identifier)
	if err != nil {
		return fmt.Errorf("%w: failed to consume challenge: %v", models.ErrUpstream, err)
	}
	if !deleted {
		// consumed concurrently
		return models.ErrNotFound
	}
	return nil
}

func (v *LocalVerifier) Discard(ctx context.Context, identifier string) error {
	if _, err := v.store.Delete(ctx, identifier); err != nil {
		return fmt.Errorf("%w: failed to discard challenge: %v", models.ErrUpstream, err)
	}
	return nil
}

func (v *LocalVerifier) drop(ctx context.Context, identifier string) {
	if _, err := v.store.Delete(ctx, identifier); err != nil {
		v.logger.Warn("Failed to delete stale challenge", zap.Error(err))
	}
}
