package model

import (
	"fmt"
	"time"
)

const (
	NotificationPaymentConfirmed = "payment_confirmed"
	NotificationPaymentFailed    = "payment_failed"
)

type NotificationStatus string

const (
	NotificationQueued NotificationStatus = "queued"
	NotificationSent   NotificationStatus = "sent"
	NotificationFailed NotificationStatus = "failed"
)

// Notification is an append-only alert row; its Type doubles as the dedupe key for reminders.
type Notification struct {
	ID        string
	UserID    string
	Type      string
	Message   string
	Phone     *string
	Status    NotificationStatus
	Read      bool
	CreatedAt time.Time
}

// ReminderType synthesizes the per-day dedupe key for a subscription reminder.
func ReminderType(endDate time.Time) string {
	return fmt.Sprintf("subscription_reminder_%s", endDate.Format("2006-01-02"))
}
