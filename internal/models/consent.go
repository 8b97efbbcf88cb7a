package models

import (
	"time"
)

// ConsentRecord is a persisted KVKK consent decision.
type ConsentRecord struct {
	ID         string    `json:"id" db:"consent_id"`
	FormID     string    `json:"form_id" db:"form_id"`
	CustomerID string    `json:"customer_id" db:"customer_id"`
	Accepted   bool      `json:"accepted" db:"accepted"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}
