package models

import (
	"time"

	"portal-auth/internal/hashing"
)

// OtpChallenge is the active one-time code for an identifier. Only the hash
// of the code is kept.
type OtpChallenge struct {
	Identifier string             `json:"identifier"`
	CodeHash   hashing.HashResult `json:"code_hash"`
	DeliveryID string             `json:"delivery_id"`
	CreatedAt  time.Time          `json:"created_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

// Expired reports whether the challenge is past its TTL at now.
func (c *OtpChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
