package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"portal-auth/internal/client"
	"portal-auth/internal/config"
	"portal-auth/internal/encryption"
	"portal-auth/internal/hashing"
	"portal-auth/internal/models"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *client.RedisClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := client.NewRedisClientFromConn(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func TestChallengeStoreRoundTrip(t *testing.T) {
	mr, rc := newRedis(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewChallengeStore(rc)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ch := &models.OtpChallenge{
		Identifier: "10000000146",
		CodeHash:   hashing.HashResult{Hash: "h", Salt: "s", PepperVersion: 1, Algorithm: "argon2id-v1"},
		DeliveryID: "d-1",
		CreatedAt:  now,
		ExpiresAt:  now.Add(5 * time.Minute),
	}
	require.NoError(t, s.Put(ctx, ch))
	assert.Equal(t, 6*time.Minute, mr.TTL("otp:10000000146"))

	got, err := s.Get(ctx, "10000000146")
	require.NoError(t, err)
	assert.Equal(t, ch.CodeHash, got.CodeHash)
	assert.True(t, ch.ExpiresAt.Equal(got.ExpiresAt))

	deleted, err := s.Delete(ctx, "10000000146")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.Get(ctx, "10000000146")
	assert.ErrorIs(t, err, models.ErrNotFound)

	deleted, err = s.Delete(ctx, "10000000146")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestChallengeStoreSingleConsumer(t *testing.T) {
	_, rc := newRedis(t)
	s := NewChallengeStore(rc)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &models.OtpChallenge{Identifier: "X", ExpiresAt: time.Now().Add(time.Minute)}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := s.Delete(ctx, "X"); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestChallengeStoreUnavailable(t *testing.T) {
	mr, rc := newRedis(t)
	s := NewChallengeStore(rc)
	mr.Close()

	_, err := s.Get(context.Background(), "X")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

func TestSessionStoreEncryptsIdentity(t *testing.T) {
	mr, rc := newRedis(t)
	enc, err := encryption.NewEncryptionManager(config.KMSConfig{}, nil)
	require.NoError(t, err)
	s := NewSessionStore(rc, enc, 15*time.Minute)
	ctx := context.Background()

	sess := &models.Session{
		ID:             "sess-1",
		NationalID:     "10000000146",
		Phone:          "05321234567",
		CustomerID:     "C-42",
		ConsentGranted: true,
		Escalation:     models.Escalation{State: models.StateChallengePending, FailedAttempts: 1, ChallengeAnswer: "K7X9P"},
		LastSeenAt:     time.Now().UTC(),
	}
	require.NoError(t, s.Save(ctx, sess))

	raw, err := mr.Get("session:sess-1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "10000000146")
	assert.NotContains(t, raw, "05321234567")
	assert.Equal(t, 15*time.Minute, mr.TTL("session:sess-1"))

	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess.NationalID, got.NationalID)
	assert.Equal(t, sess.Phone, got.Phone)
	assert.Equal(t, sess.Escalation, got.Escalation)

	mr.FastForward(16 * time.Minute)
	_, err = s.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestSessionStoreAnonymousSession(t *testing.T) {
	_, rc := newRedis(t)
	enc, err := encryption.NewEncryptionManager(config.KMSConfig{}, nil)
	require.NoError(t, err)
	s := NewSessionStore(rc, enc, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &models.Session{ID: "anon"}))
	got, err := s.Get(ctx, "anon")
	require.NoError(t, err)
	assert.False(t, got.HasIdentity())

	require.NoError(t, s.Delete(ctx, "anon"))
	_, err = s.Get(ctx, "anon")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestResendThrottle(t *testing.T) {
	mr, rc := newRedis(t)
	th := NewResendThrottle(rc)
	ctx := context.Background()

	ok, err := th.Acquire(ctx, "X", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = th.Acquire(ctx, "X", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	left, err := th.Remaining(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, left)

	mr.FastForward(31 * time.Second)
	ok, err = th.Acquire(ctx, "X", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, th.Release(ctx, "X"))
	assert.False(t, mr.Exists(resendPrefix+"X"))
	ok, err = th.Acquire(ctx, "X", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
