// Package audit ships authentication events to the configured sinks without
// ever blocking the request path.
package audit

import (
	"context"
	"sync"
	"time"

	"portal-auth/internal/bucketing"
	"portal-auth/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxBatch      = 100
	flushInterval = time.Second
	writeTimeout  = 10 * time.Second
)

// Sink persists a batch of events.
type Sink interface {
	Name() string
	Write(ctx context.Context, events []models.AuthEvent) error
}

// Publisher buffers events in a bounded channel drained by one worker.
type Publisher struct {
	sinks   []Sink
	buckets *bucketing.BucketingManager
	logger  *zap.Logger
	onDrop  func()
	now     func() time.Time

	events chan models.AuthEvent
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewPublisher(sinks []Sink, bufferSize int, buckets *bucketing.BucketingManager, logger *zap.Logger, onDrop func()) *Publisher {
	if onDrop == nil {
		onDrop = func() {}
	}
	return &Publisher{
		sinks:   sinks,
		buckets: buckets,
		logger:  logger,
		onDrop:  onDrop,
		now:     time.Now,
		events:  make(chan models.AuthEvent, max(bufferSize, 1)),
		done:    make(chan struct{}),
	}
}

// Start runs the worker until Close is called.
func (p *Publisher) Start() {
	go p.run()
}

// Publish enqueues evt. identifier only feeds the partition bucket and is not
// stored. A full buffer drops the event.
func (p *Publisher) Publish(evt models.AuthEvent, identifier string) {
	now := p.now().UTC()
	evt.EventID = uuid.NewString()
	evt.EventTime = now
	evt.EventDate = p.buckets.DateBucket(now)
	key := identifier
	if key == "" {
		key = evt.SessionID
	}
	evt.EventBucket = p.buckets.EventBucket(key)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.events <- evt:
	default:
		p.onDrop()
		p.logger.Warn("Audit buffer full, dropping event", zap.String("event_type", string(evt.EventType)))
	}
}

// Close stops accepting events and waits for the worker to flush.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) run() {
	defer close(p.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]models.AuthEvent, 0, maxBatch)
	for {
		select {
		case evt, ok := <-p.events:
			if !ok {
				p.flush(batch)
				return
			}
			batch = append(batch, evt)
			if len(batch) >= maxBatch {
				p.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (p *Publisher) flush(batch []models.AuthEvent) {
	if len(batch) == 0 {
		return
	}
	events := append([]models.AuthEvent(nil), batch...)

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	// sinks are independent: one failing never stops the others
	var g errgroup.Group
	for _, sink := range p.sinks {
		g.Go(func() error {
			if err := sink.Write(ctx, events); err != nil {
				p.logger.Error("Audit sink write failed",
					zap.String("sink", sink.Name()), zap.Int("events", len(events)), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
