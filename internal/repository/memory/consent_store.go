package memory

import (
	"context"
	"sync"

	"portal-auth/internal/models"
)

type ConsentStore struct {
	mu      sync.RWMutex
	records map[string][]models.ConsentRecord
}

func NewConsentStore() *ConsentStore {
	return &ConsentStore{records: make(map[string][]models.ConsentRecord)}
}

func (s *ConsentStore) Save(_ context.Context, record models.ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.CustomerID] = append(s.records[record.CustomerID], record)
	return nil
}

func (s *ConsentStore) ListByCustomer(_ context.Context, customerID string) ([]models.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ConsentRecord{}, s.records[customerID]...), nil
}
