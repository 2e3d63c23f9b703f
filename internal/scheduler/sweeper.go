package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/vigil/internal/logger"
)

// staleSweep is the slice of the registry the sweeper drives.
type staleSweep interface {
	SweepStale(ctx context.Context) (int, error)
}

// Sweeper periodically clears index pointers whose primary record is gone.
// Lease expiry normally removes whole records at once, so the sweeper only
// ever finds leftovers of interrupted writers, but those leftovers would
// otherwise sit in the index forever.
type Sweeper struct {
	registry staleSweep
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewSweeper creates a new sweeper.
func NewSweeper(reg staleSweep, log logger.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		registry: reg,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep process.
func (s *Sweeper) Start(ctx context.Context) error {
	// Sweep immediately on start to clear anything a previous crash left
	if err := s.Collect(ctx); err != nil {
		s.logger.Warn("initial sweep failed", logger.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Collect(ctx); err != nil {
					s.logger.Error("sweep failed", logger.Error(err))
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the sweeper.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

// Collect runs one sweep pass.
func (s *Sweeper) Collect(ctx context.Context) error {
	removed, err := s.registry.SweepStale(ctx)
	if err != nil {
		return err
	}
	if removed == 0 {
		s.logger.Debug("sweep found no stale pointers")
	}
	return nil
}
