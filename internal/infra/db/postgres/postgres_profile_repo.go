package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/repository"
)

var _ repository.ProfileRepository = (*profileRepo)(nil)

type profileRepo struct{ pool *pgxpool.Pool }

func NewProfileRepo(pool *pgxpool.Pool) *profileRepo {
	return &profileRepo{pool: pool}
}

const profileColumns = `id, email, phone, full_name, subscription_plan, subscription_status, subscription_end_date, updated_at`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	p := &model.Profile{}
	if err := row.Scan(&p.ID, &p.Email, &p.Phone, &p.FullName, &p.SubscriptionPlan, &p.SubscriptionStatus, &p.SubscriptionEndDate, &p.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

func (r *profileRepo) FindByID(ctx context.Context, tx repository.Tx, userID string) (*model.Profile, error) {
	q := `SELECT ` + profileColumns + ` FROM profiles WHERE id=$1`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanProfile(row)
}

func (r *profileRepo) ActivateSubscription(ctx context.Context, tx repository.Tx, userID, plan string, endDate time.Time) error {
	const q = `
UPDATE profiles
   SET subscription_plan = $2,
       subscription_status = 'active',
       subscription_end_date = $3,
       updated_at = NOW()
 WHERE id = $1`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, plan, endDate)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *profileRepo) ListEndingBetween(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Profile, error) {
	q := `SELECT ` + profileColumns + ` FROM profiles
 WHERE subscription_status = 'active'
   AND subscription_plan IN ('starter','professional','enterprise')
   AND subscription_end_date BETWEEN $1 AND $2
 ORDER BY subscription_end_date ASC`
	rows, err := queryRows(ctx, r.pool, tx, q, from, to)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
