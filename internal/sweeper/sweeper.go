// Package sweeper evicts event records past the retention window on a fixed
// interval, independent of write traffic.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/copperline/beacon/internal/store"
	"github.com/copperline/beacon/pkg/metrics"
)

// Sweeper runs periodic eviction passes against the store.
type Sweeper struct {
	store     store.Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a sweeper that removes records older than retention every
// interval.
func New(s store.Store, retention, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:     s,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins periodic sweeping. It runs an initial pass immediately, then
// on each tick.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the sweeper and waits for the current pass (if any) to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce fixes the cutoff at pass start, so a record appended while the
// pass runs can never be evicted prematurely.
func (s *Sweeper) sweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.retention)
	removed, err := s.store.EvictEvents(ctx, cutoff)
	if err != nil {
		s.logger.Error("sweep failed", "err", err)
		return
	}
	metrics.EventsEvicted.Add(float64(removed))
	if removed > 0 {
		s.logger.Info("sweep completed", "removed", removed, "cutoff", cutoff)
	}
}
