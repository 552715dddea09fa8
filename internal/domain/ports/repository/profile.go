package repository

import (
	"context"
	"time"

	"sme-compliance/internal/domain/model"
)

type ProfileRepository interface {
	FindByID(ctx context.Context, tx Tx, userID string) (*model.Profile, error)
	// ActivateSubscription sets plan, status 'active' and the end date.
	ActivateSubscription(ctx context.Context, tx Tx, userID, plan string, endDate time.Time) error
	// ListEndingBetween returns active recurring profiles whose end date falls in [from, to].
	ListEndingBetween(ctx context.Context, tx Tx, from, to time.Time) ([]*model.Profile, error)
}

type FeatureCreditRepository interface {
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.FeatureCredit, error)
	Balance(ctx context.Context, tx Tx, userID string, f model.Feature) (int, error)
	// Increment adds n in one upsert and returns the new balance.
	Increment(ctx context.Context, tx Tx, userID string, f model.Feature, n int) (int, error)
	// Consume subtracts n only when the balance covers it; otherwise ErrInsufficientCredits.
	Consume(ctx context.Context, tx Tx, userID string, f model.Feature, n int) (int, error)
}
