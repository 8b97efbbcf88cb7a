package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"portal-auth/internal/bucketing"
	"portal-auth/internal/config"
	"portal-auth/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureSink struct {
	name   string
	mu     sync.Mutex
	events []models.AuthEvent
	err    error
	block  chan struct{}
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Write(ctx context.Context, events []models.AuthEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return s.err
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func buckets() *bucketing.BucketingManager {
	return bucketing.NewBucketingManager(config.BucketingConfig{LockStripes: 8, EventBuckets: 16})
}

func TestPublisherFansOutToEverySink(t *testing.T) {
	ok := &captureSink{name: "ok"}
	failing := &captureSink{name: "failing", err: errors.New("broker down")}
	p := NewPublisher([]Sink{ok, failing}, 16, buckets(), zap.NewNop(), nil)
	p.Start()

	p.Publish(models.AuthEvent{EventType: models.EventOtpIssued, SessionID: "s1"}, "10000000146")
	p.Publish(models.AuthEvent{EventType: models.EventOtpVerified, SessionID: "s1"}, "10000000146")
	require.NoError(t, p.Close(context.Background()))

	assert.Equal(t, 2, ok.count())
	assert.Equal(t, 2, failing.count())

	evt := ok.events[0]
	assert.NotEmpty(t, evt.EventID)
	assert.False(t, evt.EventTime.IsZero())
	assert.Equal(t, evt.EventTime.Format("2006-01-02"), evt.EventDate)
	assert.Equal(t, buckets().EventBucket("10000000146"), evt.EventBucket)
}

func TestPublisherDropsWhenFull(t *testing.T) {
	sink := &captureSink{name: "slow", block: make(chan struct{})}
	var dropped atomic.Int32
	p := NewPublisher([]Sink{sink}, 1, buckets(), zap.NewNop(), func() { dropped.Add(1) })

	// worker not started: the single slot fills and the rest are dropped
	for range 5 {
		p.Publish(models.AuthEvent{EventType: models.EventOtpFailed, SessionID: "s"}, "")
	}
	assert.Equal(t, int32(4), dropped.Load())

	close(sink.block)
	p.Start()
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 1, sink.count())
}

func TestPublishAfterCloseIsIgnored(t *testing.T) {
	sink := &captureSink{name: "s"}
	p := NewPublisher([]Sink{sink}, 4, buckets(), zap.NewNop(), nil)
	p.Start()
	require.NoError(t, p.Close(context.Background()))

	assert.NotPanics(t, func() {
		p.Publish(models.AuthEvent{EventType: models.EventLogout}, "")
	})
	require.NoError(t, p.Close(context.Background()))
	assert.Zero(t, sink.count())
}

func TestCloseHonorsContext(t *testing.T) {
	sink := &captureSink{name: "stuck", block: make(chan struct{})}
	defer close(sink.block)
	p := NewPublisher([]Sink{sink}, 4, buckets(), zap.NewNop(), nil)
	p.Start()
	p.Publish(models.AuthEvent{EventType: models.EventLogout}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)
}

func TestLogSink(t *testing.T) {
	assert.NoError(t, NewLogSink(zap.NewNop()).Write(context.Background(), []models.AuthEvent{{EventType: models.EventLogout}}))
}
