package files

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog/log"
)

// Cleaner is the part of Service the sweeper drives.
type Cleaner interface {
	CleanExpired(ctx context.Context) (int64, error)
	Reclaim(ctx context.Context) (int64, error)
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Expired   int64         `json:"expired"`
	Reclaimed int64         `json:"reclaimed"`
	Duration  time.Duration `json:"duration"`
}

// Sweeper runs CleanExpired, and Reclaim when enabled, on a fixed interval
// independent of request traffic. The first run happens on Start.
type Sweeper struct {
	cleaner  Cleaner
	clock    clock.Clock
	interval time.Duration
	reclaim  bool

	mu     sync.Mutex // serializes RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a Sweeper.
func NewSweeper(cleaner Cleaner, clk clock.Clock, interval time.Duration, reclaim bool) *Sweeper {
	return &Sweeper{cleaner: cleaner, clock: clk, interval: interval, reclaim: reclaim}
}

// Start launches the background loop. It returns immediately.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)

	log.Info().Dur("interval", s.interval).Bool("reclaim", s.reclaim).Msg("expiry sweeper started")
}

// Stop ends the loop and waits for an in-flight run to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	log.Info().Msg("expiry sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.interval):
		}
	}
}

// RunOnce performs one sweep. Concurrent calls are serialized.
func (s *Sweeper) RunOnce(ctx context.Context) SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock.Now()
	var res SweepResult

	n, err := s.cleaner.CleanExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("expiry sweep failed")
	}
	res.Expired = n

	if s.reclaim && ctx.Err() == nil {
		n, err := s.cleaner.Reclaim(ctx)
		if err != nil {
			log.Error().Err(err).Msg("storage reclaim failed")
		}
		res.Reclaimed = n
	}

	res.Duration = s.clock.Now().Sub(start)
	sweepRunsTotal.Inc()
	sweepDuration.Observe(res.Duration.Seconds())

	log.Info().
		Int64("expired", res.Expired).
		Int64("reclaimed", res.Reclaimed).
		Dur("duration", res.Duration).
		Msg("expiry sweep finished")
	return res
}
