package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/repository"
	"sme-compliance/internal/infra/logging"
)

// ReminderWindow is how far ahead of the end date reminders start.
const ReminderWindow = 3 * 24 * time.Hour

// Compile-time check
var _ ReminderUseCase = (*reminderUC)(nil)

type ReminderUseCase interface {
	SendExpiryReminders(ctx context.Context, now time.Time) (ReminderStats, error)
}

type ReminderStats struct {
	Candidates int `json:"candidates"`
	Sent       int `json:"sent"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

type reminderUC struct {
	tm            repository.TransactionManager
	profiles      repository.ProfileRepository
	notifications repository.NotificationRepository
	outbox        repository.OutboxRepository
	productName   string
	log           *zerolog.Logger
}

func NewReminderUseCase(
	tm repository.TransactionManager,
	profiles repository.ProfileRepository,
	notifications repository.NotificationRepository,
	outbox repository.OutboxRepository,
	productName string,
	logger *zerolog.Logger,
) *reminderUC {
	if productName == "" {
		productName = "SME Compliance"
	}
	l := logger.With().Str("component", "reminder_uc").Logger()
	return &reminderUC{tm: tm, profiles: profiles, notifications: notifications, outbox: outbox, productName: productName, log: &l}
}

// SendExpiryReminders notifies each profile ending within ReminderWindow or
// still in grace, once per end date.
func (u *reminderUC) SendExpiryReminders(ctx context.Context, now time.Time) (ReminderStats, error) {
	defer logging.TraceDuration(u.log, "ReminderUC.SendExpiryReminders")()

	var stats ReminderStats
	profiles, err := u.profiles.ListEndingBetween(ctx, nil, now.Add(-model.GracePeriod), now.Add(ReminderWindow))
	if err != nil {
		return stats, fmt.Errorf("list expiring profiles: %w", err)
	}
	stats.Candidates = len(profiles)

	for _, p := range profiles {
		if p.SubscriptionEndDate == nil {
			continue
		}
		kind := model.ReminderType(*p.SubscriptionEndDate)
		exists, err := u.notifications.ExistsForUser(ctx, nil, p.ID, kind)
		if err != nil {
			stats.Failed++
			u.log.Error().Err(err).Str("user_id", p.ID).Msg("reminder dedupe lookup failed")
			continue
		}
		if exists {
			stats.Skipped++
			continue
		}
		if err := u.send(ctx, p, kind, now); err != nil {
			stats.Failed++
			u.log.Error().Err(err).Str("user_id", p.ID).Msg("reminder failed")
			continue
		}
		stats.Sent++
	}

	u.log.Info().Int("candidates", stats.Candidates).Int("sent", stats.Sent).Int("skipped", stats.Skipped).Int("failed", stats.Failed).Msg("expiry reminders done")
	return stats, nil
}

func (u *reminderUC) send(ctx context.Context, p *model.Profile, kind string, now time.Time) error {
	msg := u.reminderText(p, now)
	return u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		n := &model.Notification{
			UserID:  p.ID,
			Type:    kind,
			Message: msg,
			Phone:   p.Phone,
			Status:  model.NotificationQueued,
		}
		if err := u.notifications.Save(ctx, tx, n); err != nil {
			return fmt.Errorf("save notification: %w", err)
		}
		if p.Phone == nil || *p.Phone == "" {
			return nil
		}
		to, err := model.NormalizeKenyanPhone(*p.Phone)
		if err != nil {
			// in-app notification only
			return nil
		}
		m, err := newOutboxMessage(model.OutboxSMS, model.SMSPayload{To: to, Message: msg})
		if err != nil {
			return err
		}
		return u.outbox.Enqueue(ctx, tx, m)
	})
}

func (u *reminderUC) reminderText(p *model.Profile, now time.Time) string {
	plan := p.SubscriptionPlan
	if pl, ok := model.LookupPlan(plan); ok {
		plan = pl.Name
	}
	end := *p.SubscriptionEndDate
	date := end.In(nairobi).Format("02 Jan 2006")
	if now.After(end) {
		graceEnd := end.Add(model.GracePeriod).In(nairobi).Format("02 Jan 2006")
		return fmt.Sprintf("%s: your %s plan expired on %s. Renew by %s to keep access.", u.productName, plan, date, graceEnd)
	}
	return fmt.Sprintf("%s: your %s plan ends on %s. Renew via M-Pesa to avoid interruption.", u.productName, plan, date)
}
