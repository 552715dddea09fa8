package model

import "time"

type AuditLevel string

const (
	AuditInfo     AuditLevel = "info"
	AuditWarning  AuditLevel = "warning"
	AuditError    AuditLevel = "error"
	AuditCritical AuditLevel = "critical"
)

// Audit event names written by the payment flow.
const (
	EventPaymentInitiated       = "payment.initiated"
	EventPaymentGatewayRejected = "payment.gateway_rejected"
	EventPaymentPersistFailed   = "payment.persist_failed"
	EventPaymentCompleted       = "payment.completed"
	EventPaymentFailed          = "payment.failed"

	EventCallbackRejected  = "mpesa.callback.rejected"
	EventCallbackAccepted  = "mpesa.callback.accepted"
	EventCallbackMalformed = "mpesa.callback.malformed"
	EventCallbackUnmatched = "mpesa.callback.unmatched"
	EventCallbackDuplicate = "mpesa.callback.duplicate"
	EventCallbackError     = "mpesa.callback.error"

	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionFailed    = "subscription.activation_failed"
	EventCreditsToppedUp       = "credits.topped_up"
	EventCreditsTopUpFailed    = "credits.topup_failed"
	EventCreditsConsumed       = "credits.consumed"
	EventNotificationRecorded  = "notification.recorded"
	EventNotificationFailed    = "notification.record_failed"
	EventReceiptEmailQueued    = "receipt.email_queued"
	EventReceiptEmailSkipped   = "receipt.email_skipped"
	EventWebhookQueued         = "webhook.queued"

	EventCronRejected = "cron.rejected"
)

// AuditEntry is an append-only structured event record.
type AuditEntry struct {
	ID        string // ULID
	Event     string
	Level     AuditLevel
	UserID    *string
	Metadata  map[string]any
	CreatedAt time.Time
}
