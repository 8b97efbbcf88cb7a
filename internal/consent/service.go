// Package consent records KVKK personal-data consent decisions.
package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portal-auth/internal/models"

	"github.com/google/uuid"
)

const msgRecorded = "Consent recorded."

type Store interface {
	Save(ctx context.Context, record models.ConsentRecord) error
	ListByCustomer(ctx context.Context, customerID string) ([]models.ConsentRecord, error)
}

// Receipt confirms a persisted decision.
type Receipt struct {
	ID      string
	Message string
}

type Service struct {
	store  Store
	formID string
	now    func() time.Time
}

func NewService(store Store, formID string) *Service {
	return &Service{store: store, formID: formID, now: time.Now}
}

func (s *Service) FormID() string { return s.formID }

// Persist stores the decision for customerID against the configured form.
func (s *Service) Persist(ctx context.Context, customerID string, accepted bool) (Receipt, error) {
	if customerID == "" {
		return Receipt{}, fmt.Errorf("%w: customer id is required", models.ErrValidation)
	}

	record := models.ConsentRecord{
		ID:         uuid.NewString(),
		FormID:     s.formID,
		CustomerID: customerID,
		Accepted:   accepted,
		RecordedAt: s.now().UTC(),
	}
	if err := s.store.Save(ctx, record); err != nil {
		return Receipt{}, fmt.Errorf("%w: failed to persist consent: %v", models.ErrUpstream, err)
	}
	return Receipt{ID: record.ID, Message: msgRecorded}, nil
}

// Granted reports whether the most recent decision for the configured form is an acceptance.
func (s *Service) Granted(ctx context.Context, customerID string) (bool, error) {
	records, err := s.store.ListByCustomer(ctx, customerID)
	if err != nil {
		return false, errors.Join(models.ErrUpstream, err)
	}
	var latest *models.ConsentRecord
	for i := range records {
		r := &records[i]
		if r.FormID != s.formID {
			continue
		}
		if latest == nil || r.RecordedAt.After(latest.RecordedAt) {
			latest = r
		}
	}
	return latest != nil && latest.Accepted, nil
}
