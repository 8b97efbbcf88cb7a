package memory

import (
	"context"
	"sync"
	"time"
)

// ResendThrottle grants one send per key per cooldown window.
type ResendThrottle struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewResendThrottle() *ResendThrottle {
	return &ResendThrottle{until: make(map[string]time.Time), now: time.Now}
}

func (t *ResendThrottle) Acquire(_ context.Context, key string, cooldown time.Duration) (bool, error) {
	if cooldown <= 0 {
		return true, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if until, ok := t.until[key]; ok && now.Before(until) {
		return false, nil
	}
	t.until[key] = now.Add(cooldown)

	// sweep expired keys once the map grows
	if len(t.until) > 1024 {
		for k, u := range t.until {
			if !now.Before(u) {
				delete(t.until, k)
			}
		}
	}
	return true, nil
}

// Release clears the cooldown for key.
func (t *ResendThrottle) Release(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.until, key)
	return nil
}

// Remaining reports how long key stays throttled.
func (t *ResendThrottle) Remaining(_ context.Context, key string) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return max(t.until[key].Sub(t.now()), 0), nil
}
