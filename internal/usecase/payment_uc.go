package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/adapter"
	"sme-compliance/internal/domain/ports/repository"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// Initiate sends an STK push and records the pending payment. The payment
	// row is written only after the gateway acknowledged the push.
	Initiate(ctx context.Context, req InitiateRequest) (*model.Payment, *adapter.STKPushResponse, error)
	// Get returns a payment owned by userID.
	Get(ctx context.Context, userID, paymentID string) (*model.Payment, error)
}

type InitiateRequest struct {
	UserID   string `validate:"required"`
	Phone    string `validate:"required"`
	Amount   int64  `validate:"gt=0"`
	PlanCode string `validate:"required"`
}

// InitiateLimits bounds STK pushes per user.
type InitiateLimits struct {
	Limit  int
	Window time.Duration
}

type paymentUC struct {
	payments   repository.PaymentRepository
	gateway    adapter.MobileMoneyGateway
	limiter    adapter.RateLimiter
	alerts     adapter.OpsAlerter
	audit      *Auditor
	validate   *validator.Validate
	limits     InitiateLimits
	accountRef string
	log        *zerolog.Logger
	now        func() time.Time
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	gateway adapter.MobileMoneyGateway,
	limiter adapter.RateLimiter,
	alerts adapter.OpsAlerter,
	audit *Auditor,
	limits InitiateLimits,
	accountRef string,
	logger *zerolog.Logger,
) *paymentUC {
	l := logger.With().Str("component", "payment_uc").Logger()
	return &paymentUC{
		payments:   payments,
		gateway:    gateway,
		limiter:    limiter,
		alerts:     alerts,
		audit:      audit,
		validate:   validator.New(),
		limits:     limits,
		accountRef: accountRef,
		log:        &l,
		now:        time.Now,
	}
}

func initiateKey(userID string) string { return "rate_limit:stk_push:" + userID }

func (u *paymentUC) Initiate(ctx context.Context, req InitiateRequest) (*model.Payment, *adapter.STKPushResponse, error) {
	if err := u.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "Amount" {
					return nil, nil, domain.ErrInvalidAmount
				}
			}
		}
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	phone, err := model.NormalizeKenyanPhone(req.Phone)
	if err != nil {
		return nil, nil, err
	}
	plan, ok := model.LookupPlan(req.PlanCode)
	if !ok || plan.PriceKES <= 0 {
		return nil, nil, domain.ErrUnknownPlan
	}
	if req.Amount < plan.PriceKES {
		return nil, nil, fmt.Errorf("%w: %s costs KES %d", domain.ErrInvalidAmount, plan.Code, plan.PriceKES)
	}

	if u.limiter != nil && u.limits.Limit > 0 {
		allowed, err := u.limiter.Allow(ctx, initiateKey(req.UserID), u.limits.Limit, u.limits.Window)
		switch {
		case err != nil:
			// limiter outage must not block payments
			u.log.Warn().Err(err).Msg("rate limiter unavailable")
		case !allowed:
			return nil, nil, domain.ErrRateLimited
		}
	}

	ack, err := u.gateway.STKPush(ctx, adapter.STKPushRequest{
		Phone:            phone,
		Amount:           req.Amount,
		AccountReference: u.accountRef,
		Description:      string(plan.Code),
	})
	if err != nil {
		meta := map[string]any{"plan": req.PlanCode, "amount": req.Amount, "gateway": u.gateway.Name(), "error": err.Error()}
		var ge *domain.GatewayError
		if errors.As(err, &ge) {
			meta["code"] = ge.Code
			meta["description"] = ge.Description
		}
		u.audit.Record(ctx, nil, model.EventPaymentGatewayRejected, model.AuditWarning, req.UserID, meta)
		return nil, nil, err
	}

	now := u.now().UTC()
	userID := req.UserID
	p := &model.Payment{
		ID:                uuid.NewString(),
		UserID:            &userID,
		Amount:            req.Amount,
		PlanCode:          string(plan.Code),
		PhoneNumber:       phone,
		Status:            model.PaymentStatusPending,
		CheckoutRequestID: ack.CheckoutRequestID,
		MerchantRequestID: ack.MerchantRequestID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := u.payments.Create(ctx, nil, p); err != nil {
		// money may already be in flight; fail closed and tell an operator
		u.log.Error().Err(err).Str("checkout_request_id", ack.CheckoutRequestID).Msg("payment insert failed after gateway ack")
		u.audit.Record(ctx, nil, model.EventPaymentPersistFailed, model.AuditCritical, req.UserID, map[string]any{
			"checkout_request_id": ack.CheckoutRequestID,
			"merchant_request_id": ack.MerchantRequestID,
			"plan":                req.PlanCode,
			"amount":              req.Amount,
			"error":               err.Error(),
		})
		if u.alerts != nil {
			msg := fmt.Sprintf("STK push %s (KES %d, %s) acknowledged but not recorded: %v", ack.CheckoutRequestID, req.Amount, req.PlanCode, err)
			if aerr := u.alerts.Alert(ctx, msg); aerr != nil {
				u.log.Warn().Err(aerr).Msg("ops alert failed")
			}
		}
		return nil, nil, domain.ErrTrackingUnavailable
	}

	u.audit.Record(ctx, nil, model.EventPaymentInitiated, model.AuditInfo, req.UserID, map[string]any{
		"payment_id":          p.ID,
		"checkout_request_id": p.CheckoutRequestID,
		"merchant_request_id": p.MerchantRequestID,
		"plan":                p.PlanCode,
		"amount":              p.Amount,
	})
	return p, ack, nil
}

func (u *paymentUC) Get(ctx context.Context, userID, paymentID string) (*model.Payment, error) {
	if _, err := uuid.Parse(paymentID); err != nil {
		return nil, domain.ErrNotFound
	}
	p, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	// other users' payments are indistinguishable from missing ones
	if p.OwnerID() != userID {
		return nil, domain.ErrNotFound
	}
	return p, nil
}
