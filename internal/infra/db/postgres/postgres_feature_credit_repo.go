package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/repository"
	"sme-compliance/internal/infra/metrics"
)

var _ repository.FeatureCreditRepository = (*featureCreditRepo)(nil)

type featureCreditRepo struct{ pool *pgxpool.Pool }

func NewFeatureCreditRepo(pool *pgxpool.Pool) *featureCreditRepo {
	return &featureCreditRepo{pool: pool}
}

func (r *featureCreditRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.FeatureCredit, error) {
	const q = `SELECT user_id, feature, credit_balance, updated_at FROM feature_credits WHERE user_id=$1 ORDER BY feature`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.FeatureCredit
	for rows.Next() {
		c := &model.FeatureCredit{}
		var f string
		if err := rows.Scan(&c.UserID, &f, &c.CreditBalance, &c.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		c.Feature = model.Feature(f)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// Balance returns 0 when the user has never held credits for f.
func (r *featureCreditRepo) Balance(ctx context.Context, tx repository.Tx, userID string, f model.Feature) (int, error) {
	const q = `SELECT credit_balance FROM feature_credits WHERE user_id=$1 AND feature=$2`
	row, err := pickRow(ctx, r.pool, tx, q, userID, string(f))
	if err != nil {
		return 0, err
	}
	var bal int
	if err := row.Scan(&bal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, domain.ErrReadDatabaseRow
	}
	return bal, nil
}

// Increment is a single upsert, so concurrent top-ups never lose an update.
func (r *featureCreditRepo) Increment(ctx context.Context, tx repository.Tx, userID string, f model.Feature, n int) (int, error) {
	if n <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO feature_credits (user_id, feature, credit_balance, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (user_id, feature) DO UPDATE
   SET credit_balance = feature_credits.credit_balance + EXCLUDED.credit_balance,
       updated_at = NOW()
RETURNING credit_balance`
	row, err := pickRow(ctx, r.pool, tx, q, userID, string(f), n)
	if err != nil {
		return 0, err
	}
	var bal int
	if err := row.Scan(&bal); err != nil {
		return 0, mapWriteErr(err)
	}
	metrics.AddCredits(string(f), "topup", n)
	return bal, nil
}

func (r *featureCreditRepo) Consume(ctx context.Context, tx repository.Tx, userID string, f model.Feature, n int) (int, error) {
	if n <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	const q = `
UPDATE feature_credits
   SET credit_balance = credit_balance - $3,
       updated_at = NOW()
 WHERE user_id = $1 AND feature = $2 AND credit_balance >= $3
RETURNING credit_balance`
	row, err := pickRow(ctx, r.pool, tx, q, userID, string(f), n)
	if err != nil {
		return 0, err
	}
	var bal int
	if err := row.Scan(&bal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrInsufficientCredits
		}
		return 0, mapWriteErr(err)
	}
	metrics.AddCredits(string(f), "consume", n)
	return bal, nil
}
