package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/repository"
)

// Auditor appends audit entries. Audit rows are observability data, so a
// failed append is logged and never fails the calling operation.
type Auditor struct {
	repo repository.AuditLogRepository
	log  *zerolog.Logger
	now  func() time.Time
}

func NewAuditor(repo repository.AuditLogRepository, logger *zerolog.Logger) *Auditor {
	l := logger.With().Str("component", "audit").Logger()
	return &Auditor{repo: repo, log: &l, now: time.Now}
}

// Record writes one entry on tx (nil uses the pool). userID may be empty.
func (a *Auditor) Record(ctx context.Context, tx repository.Tx, event string, level model.AuditLevel, userID string, meta map[string]any) {
	e := &model.AuditEntry{
		Event:     event,
		Level:     level,
		Metadata:  meta,
		CreatedAt: a.now().UTC(),
	}
	if userID != "" {
		e.UserID = &userID
	}
	if err := a.repo.Append(ctx, tx, e); err != nil {
		a.log.Error().Err(err).Str("event", event).Msg("audit append failed")
	}
}
