package otp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"portal-auth/internal/hashing"
	"portal-auth/internal/models"

	"go.uber.org/zap"
)

// Issued describes a delivered code. Code is only populated when echo is enabled.
type Issued struct {
	DeliveryID string
	ExpiresAt  time.Time
	Code       string
}

// Issuer puts a fresh one-time code in front of the user.
type Issuer interface {
	Issue(ctx context.Context, identifier, phone string) (Issued, error)
}

// LocalIssuer generates codes in-process and keeps their hashes in a ChallengeStore.
type LocalIssuer struct {
	store    ChallengeStore
	sender   Sender
	hasher   *hashing.Hasher
	ttl      time.Duration
	template string
	logger   *zap.Logger

	generate CodeGenerator
	now      func() time.Time
	echo     bool
}

type IssuerOption func(*LocalIssuer)

// WithCodeGenerator replaces RandomCode.
func WithCodeGenerator(g CodeGenerator) IssuerOption {
	return func(i *LocalIssuer) { i.generate = g }
}

func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *LocalIssuer) { i.now = now }
}

// WithEcho returns generated codes to the caller. Demo and test use only.
func WithEcho(enabled bool) IssuerOption {
	return func(i *LocalIssuer) { i.echo = enabled }
}

// NewLocalIssuer builds an issuer. template must contain the {code} placeholder.
func NewLocalIssuer(
	store ChallengeStore,
	sender Sender,
	hasher *hashing.Hasher,
	ttl time.Duration,
	template string,
	logger *zap.Logger,
	opts ...IssuerOption,
) *LocalIssuer {
	i := &LocalIssuer{
		store:    store,
		sender:   sender,
		hasher:   hasher,
		ttl:      ttl,
		template: template,
		logger:   logger,
		generate: RandomCode,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue generates a code, delivers it and only then records the challenge, so a
// failed delivery never leaves an unusable code behind.
func (i *LocalIssuer) Issue(ctx context.Context, identifier, phone string) (Issued, error) {
	code, err := i.generate()
	if err != nil {
		return Issued{}, fmt.Errorf("failed to generate code: %w", err)
	}

	deliveryID, err := i.sender.Send(ctx, phone, i.message(code))
	if err != nil {
		i.logger.Warn("OTP delivery failed", zap.Error(err))
		return Issued{}, fmt.Errorf("%w: delivery failed: %v", models.ErrUpstream, err)
	}

	hash, err := i.hasher.HashOTP(code)
	if err != nil {
		return Issued{}, fmt.Errorf("failed to hash code: %w", err)
	}

	now := i.now()
	challenge := &models.OtpChallenge{
		Identifier: identifier,
		CodeHash:   hash,
		DeliveryID: deliveryID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(i.ttl),
	}
	if err := i.store.Put(ctx, challenge); err != nil {
		i.logger.Error("Failed to store OTP challenge after delivery",
			zap.String("delivery_id", deliveryID), zap.Error(err))
		return Issued{}, fmt.Errorf("%w: failed to store challenge: %v", models.ErrUpstream, err)
	}

	issued := Issued{DeliveryID: deliveryID, ExpiresAt: challenge.ExpiresAt}
	if i.echo {
		issued.Code = code
	}
	return issued, nil
}

func (i *LocalIssuer) message(code string) string {
	if !strings.Contains(i.template, "{code}") {
		return code
	}
	return strings.Replace(i.template, "{code}", code, 1)
}
