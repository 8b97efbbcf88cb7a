package models

import (
	"time"
)

// Session is the server-side state of one user agent.
type Session struct {
	ID             string     `json:"id"`
	NationalID     string     `json:"national_id,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	CustomerID     string     `json:"customer_id,omitempty"`
	ConsentGranted bool       `json:"consent_granted"`
	Escalation     Escalation `json:"escalation"`
	AuthToken      *AuthToken `json:"auth_token,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastSeenAt     time.Time  `json:"last_seen_at"`
}

// HasIdentity reports whether a login step has bound an identity to the session.
func (s *Session) HasIdentity() bool {
	return s.NationalID != "" && s.Phone != ""
}

// Authenticated reports whether the session holds an unexpired token.
func (s *Session) Authenticated(now time.Time) bool {
	return s.AuthToken != nil && now.Before(s.AuthToken.ExpiresAt)
}

// IdleExpired reports whether the session has been inactive longer than ttl.
func (s *Session) IdleExpired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(s.LastSeenAt) > ttl
}

// AuthToken is an opaque bearer value with an absolute expiry.
type AuthToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EscalationState is the tag of the authentication state union.
type EscalationState string

const (
	StateNormal              EscalationState = "normal"
	StateChallengePending    EscalationState = "challenge_pending"
	StateLockedPendingResend EscalationState = "locked_pending_resend"
)

// Escalation is the per-session bot-mitigation state. Only the escalation
// policy mutates it.
type Escalation struct {
	State             EscalationState `json:"state"`
	FailedAttempts    int             `json:"failed_attempts"`
	ChallengeAnswer   string          `json:"challenge_answer,omitempty"`
	ChallengeIssuedAt time.Time       `json:"challenge_issued_at,omitempty"`
}

// HumanChallenge is a rendered CAPTCHA and its expected answer.
type HumanChallenge struct {
	Answer   string
	Image    []byte
	IssuedAt time.Time
}
