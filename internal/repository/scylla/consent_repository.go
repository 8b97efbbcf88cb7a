package scylla

import (
	"context"
	"fmt"

	"portal-auth/internal/models"
	"portal-auth/internal/util"

	"go.uber.org/zap"
)

// ConsentRepository stores KVKK consent decisions, newest first per customer.
type ConsentRepository struct {
	client *ScyllaClient
}

func NewConsentRepository(client *ScyllaClient) *ConsentRepository {
	return &ConsentRepository{client: client}
}

func (r *ConsentRepository) Save(ctx context.Context, record models.ConsentRecord) error {
	query := r.client.Session.Query(r.client.Statements.InsertConsent,
		record.CustomerID, record.RecordedAt, record.ID, record.FormID, record.Accepted)

	if err := r.client.ExecuteWithRetry(ctx, query, 2); err != nil {
		util.Error("Failed to save consent",
			zap.String("consent_id", record.ID),
			zap.String("form_id", record.FormID),
			zap.Error(err))
		return fmt.Errorf("failed to save consent: %w", err)
	}
	return nil
}

func (r *ConsentRepository) ListByCustomer(ctx context.Context, customerID string) ([]models.ConsentRecord, error) {
	iter := r.client.Session.Query(r.client.Statements.ListConsents, customerID).WithContext(ctx).Iter()

	var (
		out []models.ConsentRecord
		rec models.ConsentRecord
	)
	for iter.Scan(&rec.ID, &rec.FormID, &rec.CustomerID, &rec.Accepted, &rec.RecordedAt) {
		out = append(out, rec)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	return out, nil
}
