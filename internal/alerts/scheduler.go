package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/steveyegge/stepview/internal/types"
)

// Poller runs one poll cycle
type Poller interface {
	Poll(ctx context.Context) (types.PollResult, error)
}

// Scheduler polls at a fixed period. Poll errors are logged and dropped;
// the next tick is the retry.
type Scheduler struct {
	poller Poller
	logger *slog.Logger

	mu       sync.RWMutex
	running  bool
	interval time.Duration
	follow   func(ctx context.Context) time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	resetCh  chan time.Duration
}

// NewScheduler creates a scheduler with the given period
func NewScheduler(poller Poller, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		poller:   poller,
		logger:   logger,
		interval: interval,
	}
}

// IntervalFor converts the configured period in minutes
func IntervalFor(s types.Settings) time.Duration {
	return time.Duration(s.AlertIntervalMin) * time.Minute
}

// Start begins polling in the background. The first poll happens one period
// after Start.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if s.interval <= 0 {
		return fmt.Errorf("invalid poll interval %v", s.interval)
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.resetCh = make(chan time.Duration, 1)

	go s.loop(ctx, s.interval, s.stopCh, s.doneCh, s.resetCh)
	return nil
}

// Stop stops the loop and waits for an in-flight poll to notice
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		s.logger.Warn("timeout waiting for poll scheduler shutdown")
	}
	return nil
}

// IsRunning returns whether the loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Interval returns the current period
func (s *Scheduler) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// Follow makes the scheduler re-read its period from fn after every tick
func (s *Scheduler) Follow(fn func(ctx context.Context) time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.follow = fn
}

// Reschedule changes the period. The next poll happens one new period from
// now. Calling it with the current period is a no-op.
func (s *Scheduler) Reschedule(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if interval == s.interval {
		return
	}
	s.interval = interval
	if !s.running {
		return
	}
	// Keep only the latest request
	select {
	case <-s.resetCh:
	default:
	}
	s.resetCh <- interval
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, stopCh, doneCh chan struct{}, resetCh chan time.Duration) {
	defer close(doneCh)
	defer func() {
		s.mu.Lock()
		if s.doneCh == doneCh {
			s.running = false
		}
		s.mu.Unlock()
	}()

	// Cancel an in-flight poll on stop
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-pollCtx.Done():
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case d := <-resetCh:
			ticker.Reset(d)
			s.logger.Info("poll interval changed", "interval", d)
		case <-ticker.C:
			select {
			case <-stopCh:
				return
			default:
			}

			result, err := s.poller.Poll(pollCtx)
			switch {
			case errors.Is(err, ErrPollInProgress):
				s.logger.Debug("poll skipped, previous cycle still running")
			case err != nil:
				s.logger.Warn("scheduled poll failed", "error", err)
			case result.NewCount > 0:
				s.logger.Info("poll found new alerts", "count", result.NewCount)
			}

			s.mu.RLock()
			follow := s.follow
			s.mu.RUnlock()
			if follow != nil {
				s.Reschedule(follow(pollCtx))
			}
		}
	}
}
