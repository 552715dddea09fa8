package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/repository"
	"sme-compliance/internal/infra/logging"
)

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

type EntitlementUseCase interface {
	Snapshot(ctx context.Context, userID string) (*model.Entitlement, error)
	// Authorize returns ErrFeatureLocked when neither the plan nor a credit covers f.
	Authorize(ctx context.Context, userID string, f model.Feature) (Grant, error)
}

// Grant tells the caller how access was obtained. A credit-backed grant
// must be settled with a consume of one unit after the work succeeds.
type Grant struct {
	Feature   model.Feature
	ViaCredit bool
}

type entitlementUC struct {
	profiles repository.ProfileRepository
	credits  repository.FeatureCreditRepository
	log      *zerolog.Logger
	now      func() time.Time
}

func NewEntitlementUseCase(profiles repository.ProfileRepository, credits repository.FeatureCreditRepository, logger *zerolog.Logger) *entitlementUC {
	l := logger.With().Str("component", "entitlement_uc").Logger()
	return &entitlementUC{profiles: profiles, credits: credits, log: &l, now: time.Now}
}

func (u *entitlementUC) Snapshot(ctx context.Context, userID string) (*model.Entitlement, error) {
	defer logging.TraceDuration(u.log, "EntitlementUC.Snapshot")()

	plan, end, err := u.subscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows, err := u.credits.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	credits := make(map[model.Feature]int, len(model.Features))
	for _, f := range model.Features {
		credits[f] = 0
	}
	for _, r := range rows {
		if r.Feature.Valid() {
			credits[r.Feature] = r.CreditBalance
		}
	}

	state := model.ResolveSubscriptionState(plan, end, u.now())
	caps := model.CapabilitiesFor(plan)
	access := make(map[model.Feature]bool, len(model.Features))
	for _, f := range model.Features {
		access[f] = model.CanUseFeature(state, caps, f, credits[f])
	}
	return &model.Entitlement{
		Plan:         plan,
		State:        state,
		EndDate:      end,
		Capabilities: caps,
		Credits:      credits,
		Access:       access,
	}, nil
}

func (u *entitlementUC) Authorize(ctx context.Context, userID string, f model.Feature) (Grant, error) {
	defer logging.TraceDuration(u.log, "EntitlementUC.Authorize")()

	if !f.Valid() {
		return Grant{}, fmt.Errorf("%w: unknown feature %q", domain.ErrInvalidArgument, f)
	}
	plan, end, err := u.subscription(ctx, userID)
	if err != nil {
		return Grant{}, err
	}
	state := model.ResolveSubscriptionState(plan, end, u.now())
	caps := model.CapabilitiesFor(plan)
	if state != model.StateExpired && caps.Includes(f) {
		return Grant{Feature: f}, nil
	}
	bal, err := u.credits.Balance(ctx, nil, userID, f)
	if err != nil {
		return Grant{}, fmt.Errorf("credit balance: %w", err)
	}
	if !model.CanUseFeature(state, caps, f, bal) {
		return Grant{}, domain.ErrFeatureLocked
	}
	return Grant{Feature: f, ViaCredit: true}, nil
}

// subscription reads the plan facet; a user without a profile row is on the free tier.
func (u *entitlementUC) subscription(ctx context.Context, userID string) (string, *time.Time, error) {
	p, err := u.profiles.FindByID(ctx, nil, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return string(model.PlanFree), nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("load profile: %w", err)
	}
	plan := p.SubscriptionPlan
	if plan == "" {
		plan = string(model.PlanFree)
	}
	return plan, p.SubscriptionEndDate, nil
}
