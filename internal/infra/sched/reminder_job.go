package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/infra/metrics"
	red "sme-compliance/internal/infra/redis"
	"sme-compliance/internal/usecase"
)

const reminderLockKey = "lock:job:expiry_reminders"

// ReminderJob runs the expiry reminder sweep on at most one replica at a time.
type ReminderJob struct {
	uc      usecase.ReminderUseCase
	locker  red.Locker
	lockTTL time.Duration
	log     *zerolog.Logger
	now     func() time.Time
}

func NewReminderJob(uc usecase.ReminderUseCase, locker red.Locker, lockTTL time.Duration, logger *zerolog.Logger) *ReminderJob {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	l := logger.With().Str("component", "ReminderJob").Logger()
	return &ReminderJob{uc: uc, locker: locker, lockTTL: lockTTL, log: &l, now: time.Now}
}

// RunOnce returns domain.ErrLockHeld when another replica is already sweeping.
func (j *ReminderJob) RunOnce(ctx context.Context) (usecase.ReminderStats, error) {
	if j.locker != nil {
		token, err := j.locker.TryLock(ctx, reminderLockKey, j.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			j.log.Info().Msg("reminder sweep already running elsewhere")
			return usecase.ReminderStats{}, err
		}
		if err != nil {
			return usecase.ReminderStats{}, err
		}
		defer func() {
			if uerr := j.locker.Unlock(context.Background(), reminderLockKey, token); uerr != nil {
				j.log.Warn().Err(uerr).Msg("reminder lock release failed")
			}
		}()
	}

	stats, err := j.uc.SendExpiryReminders(ctx, j.now())
	metrics.AddReminders("sent", stats.Sent)
	metrics.AddReminders("skipped", stats.Skipped)
	metrics.AddReminders("failed", stats.Failed)
	if err != nil {
		j.log.Error().Err(err).Msg("reminder sweep failed")
	}
	return stats, err
}
