// Package notifier delivers booking state changes to interested parties.
//
// Events are handed over after the calendar transaction commits. Delivery is
// best effort: a full buffer or a failing publisher is logged and never
// reaches the caller.
package notifier

import (
	"context"
	"errors"
	"staybook/pkg/logger"
	"staybook/pkg/model"
	"sync"
	"sync/atomic"
	"time"
)

var ErrNotifierClosed = errors.New("notifier is closed")

type Publisher interface {
	Publish(ctx context.Context, event model.BookingEvent) error
}

type Config struct {
	BufferSize     int
	Workers        int
	PublishTimeout time.Duration
}

// AsyncNotifier fans events out to a pool of workers that call the publisher.
type AsyncNotifier struct {
	publisher Publisher
	log       *logger.Logger
	cfg       Config

	events chan model.BookingEvent
	wg     sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewAsyncNotifier(publisher Publisher, cfg Config, log *logger.Logger) *AsyncNotifier {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &AsyncNotifier{
		publisher: publisher,
		log:       log.Component("notifier"),
		cfg:       cfg,
		events:    make(chan model.BookingEvent, cfg.BufferSize),
	}
}

func (n *AsyncNotifier) Start() {
	for i := 0; i < n.cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker(i)
	}
	n.log.Info("Notifier started", "workers", n.cfg.Workers, "buffer_size", n.cfg.BufferSize)
}

// OnBookingStateChanged enqueues event without blocking.
func (n *AsyncNotifier) OnBookingStateChanged(ctx context.Context, event model.BookingEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		n.log.Warn("Dropping booking event, notifier closed",
			"event_id", event.EventID,
			"booking_id", event.BookingID,
		)
		return
	}

	select {
	case n.events <- event:
	default:
		n.dropped.Add(1)
		n.log.Warn("Dropping booking event, buffer full",
			"event_id", event.EventID,
			"booking_id", event.BookingID,
			"type", event.Type,
		)
	}
}

func (n *AsyncNotifier) worker(id int) {
	defer n.wg.Done()
	for event := range n.events {
		n.publish(id, event)
	}
}

func (n *AsyncNotifier) publish(worker int, event model.BookingEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.PublishTimeout)
	defer cancel()

	if err := n.publisher.Publish(ctx, event); err != nil {
		n.log.Error("Failed to publish booking event",
			"worker", worker,
			"event_id", event.EventID,
			"booking_id", event.BookingID,
			"type", event.Type,
			"error", err,
		)
		return
	}
	n.log.Debug("Booking event published",
		"worker", worker,
		"event_id", event.EventID,
		"booking_id", event.BookingID,
		"type", event.Type,
	)
}

// Stop rejects new events and waits for queued ones to drain, or for ctx.
func (n *AsyncNotifier) Stop(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrNotifierClosed
	}
	n.closed = true
	close(n.events)
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.log.Info("Notifier stopped", "dropped_events", n.dropped.Load())
		return nil
	case <-ctx.Done():
		n.log.Warn("Notifier stop timed out, pending events lost", "pending", len(n.events))
		return ctx.Err()
	}
}

func (n *AsyncNotifier) Dropped() int64 {
	return n.dropped.Load()
}
