package repository

import (
	"context"

	"sme-compliance/internal/domain/model"
)

// -----------------------------
// Notifications / Audit / Outbox
// -----------------------------

type NotificationRepository interface {
	Save(ctx context.Context, tx Tx, n *model.Notification) error
	// ExistsForUser checks whether a notification of this type was already recorded.
	ExistsForUser(ctx context.Context, tx Tx, userID, kind string) (bool, error)
}

type AuditLogRepository interface {
	Append(ctx context.Context, tx Tx, e *model.AuditEntry) error
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, tx Tx, msgs ...*model.OutboxMessage) error
	// ClaimDue locks up to limit due messages and pushes their next attempt out by lease.
	ClaimDue(ctx context.Context, limit int, leaseSeconds int) ([]*model.OutboxMessage, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, lastErr string, retryAfterSeconds int, dead bool) error
}
