package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/repository"
	"sme-compliance/internal/infra/metrics"
	red "sme-compliance/internal/infra/redis"
)

var _ repository.ProfileRepository = (*profileRepoCacheDecorator)(nil)

// profileRepoCacheDecorator caches FindByID; entitlement reads hit it on every gated request.
type profileRepoCacheDecorator struct {
	inner repository.ProfileRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewProfileRepoCacheDecorator(inner repository.ProfileRepository, cache red.RedisClient, ttl time.Duration) repository.ProfileRepository {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &profileRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func profileKey(id string) string { return fmt.Sprintf("profile:id:%s", id) }

func (d *profileRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, userID string) (*model.Profile, error) {
	// reads inside a transaction must see the transaction's view
	if tx != nil {
		return d.inner.FindByID(ctx, tx, userID)
	}
	key := profileKey(userID)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var p model.Profile
		if json.Unmarshal([]byte(val), &p) == nil {
			metrics.IncCacheRequest("profile", "hit")
			return &p, nil
		}
	}

	metrics.IncCacheRequest("profile", "miss")
	p, err := d.inner.FindByID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(p); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return p, nil
}

func (d *profileRepoCacheDecorator) ActivateSubscription(ctx context.Context, tx repository.Tx, userID, plan string, endDate time.Time) error {
	err := d.inner.ActivateSubscription(ctx, tx, userID, plan, endDate)
	_ = d.cache.Del(ctx, profileKey(userID))
	if err != nil {
		metrics.IncSubscriptionActivation(plan, "error")
		return err
	}
	metrics.IncSubscriptionActivation(plan, "ok")
	return nil
}

func (d *profileRepoCacheDecorator) ListEndingBetween(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Profile, error) {
	return d.inner.ListEndingBetween(ctx, tx, from, to)
}
