package postgres

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/repository"
)

var _ repository.AuditLogRepository = (*auditRepo)(nil)

type auditRepo struct{ pool *pgxpool.Pool }

func NewAuditRepo(pool *pgxpool.Pool) *auditRepo {
	return &auditRepo{pool: pool}
}

// Append writes one audit row. Ids are ULIDs so rows sort by creation time.
func (r *auditRepo) Append(ctx context.Context, tx repository.Tx, e *model.AuditEntry) error {
	if e == nil || e.Event == "" {
		return domain.ErrInvalidArgument
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = ulid.MustNew(ulid.Timestamp(e.CreatedAt), rand.Reader).String()
	}
	if e.Level == "" {
		e.Level = model.AuditInfo
	}
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return domain.ErrInvalidArgument
		}
		meta = b
	}
	const q = `
INSERT INTO audit_logs (id, event, level, user_id, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.Event, string(e.Level), e.UserID, string(meta), e.CreatedAt)
	return mapWriteErr(err)
}
