package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
)

// SweepFunc deletes rows that are already invalid and reports how many.
type SweepFunc func(ctx context.Context) (int64, error)

// SweepJob is one named SweepFunc.
type SweepJob struct {
	Name string
	Fn   SweepFunc
}

// Sweeper runs its jobs on a fixed interval, independently of request
// handling. Jobs only delete rows past their own expiry, so they are safe
// to interleave with live operations.
type Sweeper struct {
	interval time.Duration
	jobs     []SweepJob
	log      logging.Logger
}

func NewSweeper(interval time.Duration, log logging.Logger, jobs ...SweepJob) *Sweeper {
	return &Sweeper{interval: interval, jobs: jobs, log: log.With("module", "sweeper")}
}

// SweepOnce runs every job once. A failing job does not stop the others.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	for _, j := range s.jobs {
		n, err := j.Fn(ctx)
		if err != nil {
			s.log.Error(ctx, "sweep failed", "job", j.Name, "error", err)
			continue
		}
		if n > 0 {
			s.log.Info(ctx, "expired rows removed", "job", j.Name, "count", n)
		}
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.SweepOnce(ctx)

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SweepOnce(ctx)
		}
	}
}
