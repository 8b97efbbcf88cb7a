package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"portal-auth/internal/bucketing"
	"portal-auth/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLocksSerialize(t *testing.T) {
	locks := NewSessionLocks(bucketing.NewBucketingManager(config.BucketingConfig{LockStripes: 4, EventBuckets: 1}))

	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(context.Background(), "sess-1")
			require.NoError(t, err)
			defer unlock()

			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestSessionLocksHonorContext(t *testing.T) {
	locks := NewSessionLocks(bucketing.NewBucketingManager(config.BucketingConfig{LockStripes: 1, EventBuckets: 1}))

	unlock, err := locks.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := locks.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock2()
}
