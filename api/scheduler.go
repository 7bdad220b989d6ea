/*
scheduler.go - Balance snapshot scheduler

PURPOSE:
  Periodically stores every employee's computed balances so HR can see how
  the vacation and sick-leave positions moved over time
  (GET /api/employees/{id}/balance-history).

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Takes one pass immediately on start, then once per tick
  - One snapshot per employee per day: a later pass the same day replaces it
  - Failures for one employee are logged and do not stop the pass

USAGE:
  scheduler := NewSnapshotScheduler(handler.Leave, store, 24*time.Hour, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - leave/snapshot.go: TakeSnapshots
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vetclinic/practice-engine/leave"
)

// SnapshotScheduler takes balance snapshots on an interval.
type SnapshotScheduler struct {
	Leave    *leave.Service
	Store    leave.SnapshotStore
	Interval time.Duration
	Enabled  bool
	Logger   *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSnapshotScheduler creates a scheduler. A non-positive interval disables it.
func NewSnapshotScheduler(svc *leave.Service, store leave.SnapshotStore, interval time.Duration, logger *zap.Logger) *SnapshotScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotScheduler{
		Leave:    svc,
		Store:    store,
		Interval: interval,
		Enabled:  interval > 0,
		Logger:   logger.Named("scheduler"),
	}
}

// Start begins the scheduler.
func (s *SnapshotScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("snapshot scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Logger.Info("snapshot scheduler started", zap.Duration("interval", s.Interval))
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *SnapshotScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("snapshot scheduler stopped")
}

func (s *SnapshotScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run immediately on start
	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-stop:
			return
		}
	}
}

// RunOnce takes one pass and returns how many snapshots were written.
func (s *SnapshotScheduler) RunOnce(ctx context.Context) int {
	start := time.Now()
	written, err := s.Leave.TakeSnapshots(ctx, s.Store)
	if err != nil {
		s.Logger.Error("snapshot pass incomplete", zap.Int("written", written), zap.Error(err))
		return written
	}
	s.Logger.Info("snapshot pass done",
		zap.Int("written", written),
		zap.Duration("duration", time.Since(start)),
	)
	return written
}
