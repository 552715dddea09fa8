package repository

import (
	"context"

	"sme-compliance/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Create(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByCheckoutRequestID(ctx context.Context, tx Tx, checkoutID string) (*model.Payment, error)
	FindByMerchantRequestID(ctx context.Context, tx Tx, merchantID string) (*model.Payment, error)
	// Transition moves a pending payment to a terminal state with a single
	// conditional write. It reports false when the row was no longer pending.
	Transition(ctx context.Context, tx Tx, id string, res model.PaymentResult) (bool, error)
}
