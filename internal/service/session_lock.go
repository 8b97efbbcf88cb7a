package service

import (
	"context"

	"portal-auth/internal/bucketing"
)

// SessionLocks serializes work per session. Sessions are striped onto a fixed
// set of 1-slot semaphores, so two sessions may share a stripe but one session
// never runs two operations at once.
type SessionLocks struct {
	buckets *bucketing.BucketingManager
	stripes []chan struct{}
}

func NewSessionLocks(buckets *bucketing.BucketingManager) *SessionLocks {
	stripes := make([]chan struct{}, buckets.LockStripes())
	for i := range stripes {
		stripes[i] = make(chan struct{}, 1)
	}
	return &SessionLocks{buckets: buckets, stripes: stripes}
}

// Lock blocks until the session's stripe is free or ctx is done. The returned
// func releases it and must be called exactly once.
func (l *SessionLocks) Lock(ctx context.Context, sessionID string) (func(), error) {
	stripe := l.stripes[l.buckets.LockStripe(sessionID)]
	select {
	case stripe <- struct{}{}:
		return func() { <-stripe }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
