// Package scheduler runs the bot's housekeeping jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// SweepSpec is how often expired confirmations are purged.
const SweepSpec = "@every 1m"

// jobTimeout bounds one run of any job.
const jobTimeout = 2 * time.Minute

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// SubscriptionResetter unticks the fixed-expense checklist. *budget.Tracker satisfies it.
type SubscriptionResetter interface {
	ResetSubscriptions(ctx context.Context) (int, error)
}

// Sweeper purges expired pending confirmations. *confirm.Gate satisfies it.
type Sweeper interface {
	Sweep(ctx context.Context)
}

// Scheduler manages the background jobs
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	running bool
}

// New registers the monthly checklist reset on resetSpec and, when sweeper is
// non-nil, the confirmation sweep. A nil resetter skips the reset job.
func New(resetSpec string, resetter SubscriptionResetter, sweeper Sweeper, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{})))

	if resetter != nil {
		if _, err := c.AddFunc(resetSpec, func() { runReset(resetter) }); err != nil {
			return nil, fmt.Errorf("invalid subscription reset schedule %q: %w", resetSpec, err)
		}
	}
	if sweeper != nil {
		if _, err := c.AddFunc(SweepSpec, func() { runSweep(sweeper) }); err != nil {
			return nil, fmt.Errorf("invalid sweep schedule: %w", err)
		}
	}
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop halts scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		log.Info().Msg("scheduler stopped")
	case <-ctx.Done():
		log.Warn().Msg("scheduler stop timed out with jobs still running")
	}
}

// Next reports when spec fires after from.
func Next(spec string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return sched.Next(from), nil
}

func runReset(r SubscriptionResetter) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	n, err := r.ResetSubscriptions(ctx)
	if err != nil {
		log.Error().Err(err).Int("reset", n).Msg("subscription checklist reset failed")
		return
	}
	log.Info().Int("reset", n).Msg("subscription checklist reset")
}

func runSweep(s Sweeper) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.Sweep(ctx)
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
