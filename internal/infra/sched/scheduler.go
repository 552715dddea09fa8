package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs cron-driven jobs in the configured timezone.
type Scheduler struct {
	cron *cron.Cron
	log  *zerolog.Logger
}

// NewScheduler registers the reminder job under a standard 5-field cron expression.
func NewScheduler(spec, timezone string, job *ReminderJob, timeout time.Duration, logger *zerolog.Logger) (*Scheduler, error) {
	l := logger.With().Str("component", "Scheduler").Logger()
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		// hosts without tzdata; Kenya has no DST
		l.Warn().Err(err).Str("timezone", timezone).Msg("falling back to fixed EAT offset")
		loc = time.FixedZone("EAT", 3*60*60)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	cl := cronLogger{log: &l}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, _ = job.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid reminder cron %q: %w", spec, err)
	}
	return &Scheduler{cron: c, log: &l}, nil
}

// Run blocks until ctx is cancelled, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Starting scheduler")
	s.cron.Start()
	<-ctx.Done()
	s.log.Info().Msg("Stopping scheduler")
	<-s.cron.Stop().Done()
	return ctx.Err()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ log *zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.log.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.log.Error().Err(err).Fields(kv).Msg(msg)
}
