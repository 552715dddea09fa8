package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/repository"
)

var _ repository.NotificationRepository = (*notificationRepo)(nil)

type notificationRepo struct{ pool *pgxpool.Pool }

func NewNotificationRepo(pool *pgxpool.Pool) *notificationRepo {
	return &notificationRepo{pool: pool}
}

func (r *notificationRepo) Save(ctx context.Context, tx repository.Tx, n *model.Notification) error {
	if n == nil || n.UserID == "" || n.Type == "" {
		return domain.ErrInvalidArgument
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = model.NotificationQueued
	}
	const q = `
INSERT INTO notifications (id, user_id, type, message, phone, status, read, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err := execSQL(ctx, r.pool, tx, q, n.ID, n.UserID, n.Type, n.Message, n.Phone, string(n.Status), n.Read, n.CreatedAt)
	return mapWriteErr(err)
}

func (r *notificationRepo) ExistsForUser(ctx context.Context, tx repository.Tx, userID, kind string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM notifications WHERE user_id=$1 AND type=$2)`
	row, err := pickRow(ctx, r.pool, tx, q, userID, kind)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return ok, nil
}
