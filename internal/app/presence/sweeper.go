package presence

import (
	"context"
	"time"
)

type evicter interface {
	Sweep(now time.Time) (cursors, selections int)
}

// Sweeper periodically evicts stale presence records.
type Sweeper struct {
	interval time.Duration
	target   evicter
	now      func() time.Time
}

// NewSweeper returns a sweeper that calls target.Sweep every interval.
func NewSweeper(interval time.Duration, target evicter, now func() time.Time) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{interval: interval, target: target, now: now}
}

// Run ticks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.target.Sweep(s.now())
		}
	}
}
