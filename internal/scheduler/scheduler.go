// Package scheduler wraps robfig/cron/v3 to register the six recurring
// jobs the trading system runs: forecast_fetch_every_30m, full_refresh_0600_local,
// settlement_fetch_0800_local, trade_cycle_every_15m,
// pending_queue_sweep_every_60s, and the optional
// weekly_model_retrain_sun_0300_local.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives a set of named, timed jobs. Each job body is given a
// bounded context.Context and any panic inside it is recovered and
// logged, so one stalled or crashing job can never take the process
// down or block the others. The cron instance wraps every job in
// DelayIfStillRunning, so each entry's due invocations run serially and
// a job is never re-entered while a previous run is still in flight.
type Scheduler struct {
	cron *cron.Cron
}

// New builds a Scheduler using the standard 5-field cron parser
// (minute hour day-of-month month day-of-week), in the given location.
func New(loc *time.Location) *Scheduler {
	return &Scheduler{cron: cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.DelayIfStillRunning(cron.DefaultLogger)),
	)}
}

// Register adds a named job on the given standard 5-field cron spec,
// running body with a timeout-bounded context. Returns an error if spec
// fails to parse.
func (s *Scheduler) Register(spec, name string, timeout time.Duration, body func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.runOne(name, timeout, body)
	})
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) runOne(name string, timeout time.Duration, body func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduled job panicked", "job", name, "panic", r)
		}
	}()

	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	slog.Info("scheduled job starting", "job", name)
	body(ctx)
	slog.Info("scheduled job finished", "job", name, "duration", time.Since(start))
}

// Start begins running registered jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels the scheduler and waits for any running jobs to
// complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
