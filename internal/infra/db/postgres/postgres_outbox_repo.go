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

var _ repository.OutboxRepository = (*outboxRepo)(nil)

type outboxRepo struct{ pool *pgxpool.Pool }

func NewOutboxRepo(pool *pgxpool.Pool) *outboxRepo {
	return &outboxRepo{pool: pool}
}

// Enqueue inserts messages on tx so they commit together with the state change that produced them.
func (r *outboxRepo) Enqueue(ctx context.Context, tx repository.Tx, msgs ...*model.OutboxMessage) error {
	const q = `
INSERT INTO outbox_messages (id, kind, payload, status, attempts, next_attempt_at, created_at)
VALUES ($1,$2,$3,'pending',0,$4,$4);`
	now := time.Now().UTC()
	for _, m := range msgs {
		if m == nil || m.Kind == "" || len(m.Payload) == 0 {
			return domain.ErrInvalidArgument
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.Status = model.OutboxPending
		m.NextAttemptAt = now
		m.CreatedAt = now
		if _, err := execSQL(ctx, r.pool, tx, q, m.ID, string(m.Kind), string(m.Payload), now); err != nil {
			return mapWriteErr(err)
		}
	}
	return nil
}

// ClaimDue leases due messages. SKIP LOCKED lets several dispatchers share the table.
func (r *outboxRepo) ClaimDue(ctx context.Context, limit int, leaseSeconds int) ([]*model.OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
WITH due AS (
  SELECT id FROM outbox_messages
   WHERE status = 'pending' AND next_attempt_at <= NOW()
   ORDER BY next_attempt_at
   LIMIT $1
   FOR UPDATE SKIP LOCKED
)
UPDATE outbox_messages o
   SET next_attempt_at = NOW() + make_interval(secs => $2)
  FROM due
 WHERE o.id = due.id
RETURNING o.id, o.kind, o.payload, o.status, o.attempts, o.next_attempt_at, o.last_error, o.created_at, o.processed_at`
	rows, err := queryRows(ctx, r.pool, nil, q, limit, leaseSeconds)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.OutboxMessage
	for rows.Next() {
		m := &model.OutboxMessage{}
		var kind, status string
		var payload []byte
		if err := rows.Scan(&m.ID, &kind, &payload, &status, &m.Attempts, &m.NextAttemptAt, &m.LastError, &m.CreatedAt, &m.ProcessedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		m.Kind = model.OutboxKind(kind)
		m.Status = model.OutboxStatus(status)
		m.Payload = payload
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *outboxRepo) MarkSent(ctx context.Context, id string) error {
	const q = `UPDATE outbox_messages SET status='sent', attempts=attempts+1, processed_at=NOW(), last_error=NULL WHERE id=$1`
	_, err := execSQL(ctx, r.pool, nil, q, id)
	return mapWriteErr(err)
}

func (r *outboxRepo) MarkFailed(ctx context.Context, id string, lastErr string, retryAfterSeconds int, dead bool) error {
	const q = `
UPDATE outbox_messages
   SET attempts = attempts + 1,
       last_error = $2,
       status = CASE WHEN $4 THEN 'dead' ELSE 'pending' END,
       next_attempt_at = NOW() + make_interval(secs => $3),
       processed_at = CASE WHEN $4 THEN NOW() ELSE processed_at END
 WHERE id = $1`
	_, err := execSQL(ctx, r.pool, nil, q, id, lastErr, retryAfterSeconds, dead)
	return mapWriteErr(err)
}
