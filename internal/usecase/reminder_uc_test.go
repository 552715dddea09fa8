//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/usecase"
)

func TestReminderUseCase_SendExpiryReminders(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }

	profiles := NewMockProfileRepo()
	profiles.Put(&model.Profile{ID: "soon", Phone: strPtr("0712345678"), SubscriptionPlan: "starter", SubscriptionStatus: "active", SubscriptionEndDate: at(48 * time.Hour)})
	profiles.Put(&model.Profile{ID: "grace", Phone: strPtr("254712345679"), SubscriptionPlan: "enterprise", SubscriptionStatus: "active", SubscriptionEndDate: at(-24 * time.Hour)})
	profiles.Put(&model.Profile{ID: "nophone", SubscriptionPlan: "professional", SubscriptionStatus: "active", SubscriptionEndDate: at(time.Hour)})
	profiles.Put(&model.Profile{ID: "later", Phone: strPtr("0712345670"), SubscriptionPlan: "starter", SubscriptionStatus: "active", SubscriptionEndDate: at(20 * 24 * time.Hour)})
	profiles.Put(&model.Profile{ID: "long-gone", Phone: strPtr("0712345671"), SubscriptionPlan: "starter", SubscriptionStatus: "active", SubscriptionEndDate: at(-10 * 24 * time.Hour)})

	notifications := &MockNotificationRepo{}
	outbox := &MockOutboxRepo{}
	uc := usecase.NewReminderUseCase(&MockTxManager{}, profiles, notifications, outbox, "", newTestLogger())

	stats, err := uc.SendExpiryReminders(ctx, now)

	require.NoError(t, err)
	assert.Equal(t, usecase.ReminderStats{Candidates: 3, Sent: 3}, stats)
	assert.Equal(t, 3, notifications.Count())
	assert.Equal(t, []model.OutboxKind{model.OutboxSMS, model.OutboxSMS}, outbox.Kinds())
	for _, n := range notifications.Saved {
		if n.UserID == "soon" {
			assert.Equal(t, "subscription_reminder_2026-03-12", n.Type)
		}
	}
	var sms model.SMSPayload
	for _, m := range outbox.Msgs {
		require.NoError(t, json.Unmarshal(m.Payload, &sms))
		assert.Regexp(t, `^2547\d{8}$`, sms.To)
	}

	// second run on the same day is deduplicated
	stats, err = uc.SendExpiryReminders(ctx, now.Add(6*time.Hour))

	require.NoError(t, err)
	assert.Equal(t, usecase.ReminderStats{Candidates: 3, Skipped: 3}, stats)
	assert.Equal(t, 3, notifications.Count())
	assert.Len(t, outbox.Msgs, 2)
}
