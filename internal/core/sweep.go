package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically converges state that no further event would touch:
// idle windows, ended raids and expired timeouts.
type Sweeper struct {
	raid     *RaidController
	spam     *SpamController
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
}

// NewSweeper creates a sweeper. A nil clock uses time.Now.
func NewSweeper(raid *RaidController, spam *SpamController, logger *zap.Logger, interval time.Duration, clock func() time.Time) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if clock == nil {
		clock = time.Now
	}
	return &Sweeper{
		raid:     raid,
		spam:     spam,
		logger:   logger,
		interval: interval,
		now:      clock,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop in the background until Stop is called or ctx
// is done.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("Reconciliation sweep started", zap.Duration("interval", s.interval))
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx, s.now())
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the sweep loop and waits for a sweep in progress to finish
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	if s.started.Load() {
		<-s.doneCh
	}
	s.logger.Info("Reconciliation sweep stopped")
}

// RunOnce performs a single reconciliation pass
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Reconciliation sweep panicked", zap.Any("panic", r))
		}
		sweepDuration.Observe(time.Since(start).Seconds())
	}()

	if s.raid != nil {
		s.raid.Reconcile(ctx, now)
	}
	if s.spam != nil {
		s.spam.Reconcile(ctx, now)
	}
	s.logger.Debug("Reconciliation sweep finished", zap.Duration("took", time.Since(start)))
}
