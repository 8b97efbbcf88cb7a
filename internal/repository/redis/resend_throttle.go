package redis

import (
	"context"
	"fmt"
	"time"

	"portal-auth/internal/client"
	"portal-auth/internal/util"

	"go.uber.org/zap"
)

const resendPrefix = "otp_resend:"

// ResendThrottle allows one code per key per cooldown using SET NX with expiry.
type ResendThrottle struct {
	client *client.RedisClient
}

func NewResendThrottle(client *client.RedisClient) *ResendThrottle {
	return &ResendThrottle{client: client}
}

func (t *ResendThrottle) Acquire(ctx context.Context, key string, cooldown time.Duration) (bool, error) {
	if cooldown <= 0 {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ok, err := t.client.SetNX(ctx, resendPrefix+key, "1", cooldown)
	if err != nil {
		util.Error("Failed to set resend cooldown", zap.Duration("cooldown", cooldown), zap.Error(err))
		return false, fmt.Errorf("failed to set resend cooldown: %w", err)
	}
	return ok, nil
}

// Release clears the cooldown for key.
func (t *ResendThrottle) Release(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := t.client.Del(ctx, resendPrefix+key); err != nil {
		return fmt.Errorf("failed to clear resend cooldown: %w", err)
	}
	return nil
}

// Remaining reports how long key stays throttled.
func (t *ResendThrottle) Remaining(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ttl, err := t.client.TTL(ctx, resendPrefix+key)
	if err != nil {
		return 0, fmt.Errorf("failed to read resend cooldown: %w", err)
	}
	return max(ttl, 0), nil
}
