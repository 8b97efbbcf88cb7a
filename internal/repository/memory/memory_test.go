package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"portal-auth/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeStoreLifecycle(t *testing.T) {
	s := NewChallengeStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "X")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, s.Put(ctx, &models.OtpChallenge{Identifier: "X", DeliveryID: "a"}))
	require.NoError(t, s.Put(ctx, &models.OtpChallenge{Identifier: "X", DeliveryID: "b"}))

	got, err := s.Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, "b", got.DeliveryID)

	// returned values are copies
	got.DeliveryID = "mutated"
	again, _ := s.Get(ctx, "X")
	assert.Equal(t, "b", again.DeliveryID)

	deleted, err := s.Delete(ctx, "X")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(ctx, "X")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestChallengeStoreSingleConsumer(t *testing.T) {
	s := NewChallengeStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &models.OtpChallenge{Identifier: "X"}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Delete(ctx, "X"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestSessionStoreIdleExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSessionStore(15 * time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &models.Session{ID: "s1", LastSeenAt: now}))

	now = now.Add(14 * time.Minute)
	_, err := s.Get(ctx, "s1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	require.NoError(t, s.Delete(ctx, "missing"))
}

func TestSessionStoreSweepsAbandonedSessions(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSessionStore(15 * time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := range 5000 {
		require.NoError(t, s.Save(ctx, &models.Session{ID: fmt.Sprintf("abandoned-%d", i), LastSeenAt: now}))
	}
	assert.Equal(t, 5000, s.Len())

	now = now.Add(24 * time.Hour)
	require.NoError(t, s.Save(ctx, &models.Session{ID: "fresh", LastSeenAt: now}))

	assert.Equal(t, 1, s.Len())
	_, err := s.Get(ctx, "fresh")
	require.NoError(t, err)
}

func TestSessionStoreKeepsLiveSessionsOnSweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSessionStore(15 * time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := range sweepThreshold {
		require.NoError(t, s.Save(ctx, &models.Session{ID: fmt.Sprintf("old-%d", i), LastSeenAt: now}))
	}
	now = now.Add(10 * time.Minute)
	require.NoError(t, s.Save(ctx, &models.Session{ID: "recent", LastSeenAt: now}))
	assert.Equal(t, sweepThreshold+1, s.Len())

	now = now.Add(6 * time.Minute)
	require.NoError(t, s.Save(ctx, &models.Session{ID: "newest", LastSeenAt: now}))
	assert.Equal(t, 2, s.Len())
}

func TestResendThrottle(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	th := NewResendThrottle()
	th.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := th.Acquire(ctx, "X", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = th.Acquire(ctx, "X", 30*time.Second)
	assert.False(t, ok)

	ok, _ = th.Acquire(ctx, "Y", 30*time.Second)
	assert.True(t, ok)

	now = now.Add(31 * time.Second)
	ok, _ = th.Acquire(ctx, "X", 30*time.Second)
	assert.True(t, ok)

	ok, _ = th.Acquire(ctx, "X", 0)
	assert.True(t, ok)

	ok, _ = th.Acquire(ctx, "Z", 30*time.Second)
	assert.True(t, ok)
	require.NoError(t, th.Release(ctx, "Z"))
	left, err := th.Remaining(ctx, "Z")
	require.NoError(t, err)
	assert.Zero(t, left)
	ok, _ = th.Acquire(ctx, "Z", 30*time.Second)
	assert.True(t, ok)
}

func TestConsentStoreCopies(t *testing.T) {
	s := NewConsentStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, models.ConsentRecord{ID: "1", CustomerID: "C"}))

	list, err := s.ListByCustomer(ctx, "C")
	require.NoError(t, err)
	require.Len(t, list, 1)
	list[0].ID = "changed"

	list, _ = s.ListByCustomer(ctx, "C")
	assert.Equal(t, "1", list[0].ID)
}
