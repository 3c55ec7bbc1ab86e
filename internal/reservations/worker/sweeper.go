// Package worker runs the reservation engine's scheduled jobs.
package worker

import (
	"context"
	"staybook/internal/reservations/service"
	"staybook/pkg/logger"
	"sync"
	"time"
)

// StayAdvancer is the part of the reservation service the sweeper drives.
type StayAdvancer interface {
	AdvanceStays(ctx context.Context, now time.Time) (service.AdvanceResult, error)
}

// Sweeper periodically moves due bookings to CHECK_IN and CHECK_OUT.
type Sweeper struct {
	advancer StayAdvancer
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger
	now      func() time.Time

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewSweeper(advancer StayAdvancer, interval, timeout time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		advancer: advancer,
		interval: interval,
		timeout:  timeout,
		log:      log.Component("stay_sweeper"),
		now:      func() time.Time { return time.Now().UTC() },
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval until Stop.
func (s *Sweeper) Start() {
	s.log.Info("Stay sweeper started", "interval", s.interval)
	go s.run()
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.advancer.AdvanceStays(ctx, s.now()); err != nil {
		s.log.Error("Stay sweep failed", "error", err)
	}
}

// Stop waits for an in-flight sweep to finish. It must follow Start and may
// be called more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.done
	s.log.Info("Stay sweeper stopped")
}
