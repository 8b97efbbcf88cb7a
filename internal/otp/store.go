package otp

import (
	"context"

	"portal-auth/internal/models"
)

// ChallengeStore holds at most one active challenge per identifier.
type ChallengeStore interface {
	// Put stores ch, replacing any challenge for the same identifier.
	Put(ctx context.Context, ch *models.OtpChallenge) error
	// Get returns models.ErrNotFound (wrapped) when no challenge exists.
	Get(ctx context.Context, identifier string) (*models.OtpChallenge, error)
	// Delete reports whether a challenge was actually removed.
	Delete(ctx context.Context, identifier string) (bool, error)
}

// Sender delivers a text message out of band and returns a delivery reference.
type Sender interface {
	Send(ctx context.Context, phone, message string) (string, error)
}
