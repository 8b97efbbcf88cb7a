package consent

import (
	"context"
	"errors"
	"testing"
	"time"

	"portal-auth/internal/models"
	"portal-auth/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Save(context.Context, models.ConsentRecord) error {
	return errors.New("cluster unavailable")
}

func (failingStore) ListByCustomer(context.Context, string) ([]models.ConsentRecord, error) {
	return nil, errors.New("cluster unavailable")
}

func TestPersistAndGranted(t *testing.T) {
	store := memory.NewConsentStore()
	svc := NewService(store, "kvkk-v1")
	ctx := context.Background()

	granted, err := svc.Granted(ctx, "C-1")
	require.NoError(t, err)
	assert.False(t, granted)

	receipt, err := svc.Persist(ctx, "C-1", true)
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ID)

	granted, err = svc.Granted(ctx, "C-1")
	require.NoError(t, err)
	assert.True(t, granted)

	records, _ := store.ListByCustomer(ctx, "C-1")
	require.Len(t, records, 1)
	assert.Equal(t, "kvkk-v1", records[0].FormID)
}

func TestLatestDecisionWins(t *testing.T) {
	store := memory.NewConsentStore()
	svc := NewService(store, "kvkk-v1")
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	_, err := svc.Persist(ctx, "C-1", true)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = svc.Persist(ctx, "C-1", false)
	require.NoError(t, err)

	granted, err := svc.Granted(ctx, "C-1")
	require.NoError(t, err)
	assert.False(t, granted)

	// other forms are ignored
	other := NewService(store, "kvkk-v2")
	granted, _ = other.Granted(ctx, "C-1")
	assert.False(t, granted)
}

func TestPersistErrors(t *testing.T) {
	_, err := NewService(memory.NewConsentStore(), "kvkk-v1").Persist(context.Background(), "", true)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = NewService(failingStore{}, "kvkk-v1").Persist(context.Background(), "C-1", true)
	assert.ErrorIs(t, err, models.ErrUpstream)

	_, err = NewService(failingStore{}, "kvkk-v1").Granted(context.Background(), "C-1")
	assert.ErrorIs(t, err, models.ErrUpstream)
}
