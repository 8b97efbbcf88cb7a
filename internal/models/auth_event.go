package models

import (
	"time"
)

type AuthEventType string

const (
	EventLoginSucceeded    AuthEventType = "login_succeeded"
	EventLoginFailed       AuthEventType = "login_failed"
	EventOtpIssued         AuthEventType = "otp_issued"
	EventOtpDeliveryFailed AuthEventType = "otp_delivery_failed"
	EventOtpVerified       AuthEventType = "otp_verified"
	EventOtpFailed         AuthEventType = "otp_failed"
	EventChallengeRequired AuthEventType = "challenge_required"
	EventChallengeFailed   AuthEventType = "challenge_failed"
	EventOtpResent         AuthEventType = "otp_resent"
	EventLogout            AuthEventType = "logout"
)

// AuthEvent is one entry of the authentication audit trail. It never carries
// the raw national ID or phone number.
type AuthEvent struct {
	EventID     string        `json:"event_id" ch:"event_id"`
	EventBucket int           `json:"event_bucket" ch:"event_bucket"`
	EventDate   string        `json:"event_date" ch:"event_date"`
	EventTime   time.Time     `json:"event_time" ch:"event_time"`
	EventType   AuthEventType `json:"event_type" ch:"event_type"`
	SessionID   string        `json:"session_id" ch:"session_id"`
	CustomerID  string        `json:"customer_id,omitempty" ch:"customer_id"`
	IPAddress   string        `json:"ip_address,omitempty" ch:"ip_address"`
	Outcome     ErrorKind     `json:"outcome,omitempty" ch:"outcome"`
	Attempts    int           `json:"attempts" ch:"attempts"`
	State       string        `json:"state,omitempty" ch:"state"`
}
