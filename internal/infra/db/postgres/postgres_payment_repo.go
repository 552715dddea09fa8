package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, amount, plan_code, phone_number, status, checkout_request_id, merchant_request_id, mpesa_receipt, result_code, result_desc, raw_callback, created_at, updated_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	var status string
	if err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.PlanCode, &p.PhoneNumber, &status, &p.CheckoutRequestID, &p.MerchantRequestID, &p.MpesaReceipt, &p.ResultCode, &p.ResultDesc, &p.RawCallback, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	p.Status = model.PaymentStatus(status)
	return p, nil
}

func (r *paymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if p == nil || p.ID == "" || p.CheckoutRequestID == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO payments (
  id, user_id, amount, plan_code, phone_number, status, checkout_request_id, merchant_request_id, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9);`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.Amount, p.PlanCode, p.PhoneNumber, string(p.Status), p.CheckoutRequestID, p.MerchantRequestID, p.CreatedAt)
	return mapWriteErr(err)
}

func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, where string, arg any) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + where + ` LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	return r.findOne(ctx, tx, "id=$1", id)
}

func (r *paymentRepo) FindByCheckoutRequestID(ctx context.Context, tx repository.Tx, checkoutID string) (*model.Payment, error) {
	return r.findOne(ctx, tx, "checkout_request_id=$1", checkoutID)
}

func (r *paymentRepo) FindByMerchantRequestID(ctx context.Context, tx repository.Tx, merchantID string) (*model.Payment, error) {
	return r.findOne(ctx, tx, "merchant_request_id=$1", merchantID)
}

// Transition writes the terminal state only while the row is still pending.
func (r *paymentRepo) Transition(ctx context.Context, tx repository.Tx, id string, res model.PaymentResult) (bool, error) {
	if !res.Status.IsTerminal() {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE payments
   SET status = $2,
       mpesa_receipt = $3,
       result_code = $4,
       result_desc = $5,
       raw_callback = $6,
       updated_at = NOW()
 WHERE id = $1
   AND status = 'pending'`

	var raw any
	if len(res.RawCallback) > 0 {
		raw = string(res.RawCallback)
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(res.Status), res.MpesaReceipt, res.ResultCode, res.ResultDesc, raw)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}
