package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/repository"
	"sme-compliance/internal/infra/logging"
)

// Compile-time check
var _ CreditUseCase = (*creditUC)(nil)

type CreditUseCase interface {
	// Balances returns every feature with its balance; missing rows read as zero.
	Balances(ctx context.Context, userID string) (map[model.Feature]int, error)
	Consume(ctx context.Context, req ConsumeRequest) (int, error)
}

type ConsumeRequest struct {
	UserID   string        `validate:"required"`
	Feature  model.Feature `validate:"required"`
	Quantity int           `validate:"gt=0"`
}

type creditUC struct {
	credits  repository.FeatureCreditRepository
	audit    *Auditor
	validate *validator.Validate
	log      *zerolog.Logger
}

func NewCreditUseCase(credits repository.FeatureCreditRepository, audit *Auditor, logger *zerolog.Logger) *creditUC {
	l := logger.With().Str("component", "credit_uc").Logger()
	return &creditUC{credits: credits, audit: audit, validate: validator.New(), log: &l}
}

func (u *creditUC) Balances(ctx context.Context, userID string) (map[model.Feature]int, error) {
	defer logging.TraceDuration(u.log, "CreditUC.Balances")()

	rows, err := u.credits.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	out := make(map[model.Feature]int, len(model.Features))
	for _, f := range model.Features {
		out[f] = 0
	}
	for _, r := range rows {
		if r.Feature.Valid() {
			out[r.Feature] = r.CreditBalance
		}
	}
	return out, nil
}

func (u *creditUC) Consume(ctx context.Context, req ConsumeRequest) (int, error) {
	defer logging.TraceDuration(u.log, "CreditUC.Consume")()

	if err := u.validate.Struct(req); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if !req.Feature.Valid() {
		return 0, fmt.Errorf("%w: unknown feature %q", domain.ErrInvalidArgument, req.Feature)
	}

	bal, err := u.credits.Consume(ctx, nil, req.UserID, req.Feature, req.Quantity)
	if errors.Is(err, domain.ErrInsufficientCredits) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("consume credits: %w", err)
	}
	u.audit.Record(ctx, nil, model.EventCreditsConsumed, model.AuditInfo, req.UserID, map[string]any{
		"feature":  string(req.Feature),
		"quantity": req.Quantity,
		"balance":  bal,
	})
	return bal, nil
}
