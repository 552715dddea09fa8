//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/repository"
)

func TestProfileRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	profile := &model.Profile{ID: "user-1", SubscriptionPlan: "starter", SubscriptionStatus: "active", SubscriptionEndDate: &end}

	t.Run("miss reads through and warms the cache", func(t *testing.T) {
		var setKey string
		innerCalls := 0
		cache := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", redis.Nil },
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				setKey = key
				return nil
			},
		}
		inner := &mockInnerProfileRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, userID string) (*model.Profile, error) {
				innerCalls++
				return profile, nil
			},
		}

		got, err := NewProfileRepoCacheDecorator(inner, cache, 0).FindByID(ctx, nil, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 1, innerCalls)
		assert.Equal(t, "profile:id:user-1", setKey)
		assert.Equal(t, "starter", got.SubscriptionPlan)
	})

	t.Run("hit skips the database", func(t *testing.T) {
		b, _ := json.Marshal(profile)
		cache := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return string(b), nil },
		}
		inner := &mockInnerProfileRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, userID string) (*model.Profile, error) {
				t.Fatal("inner repository must not be called on a hit")
				return nil, nil
			},
		}

		got, err := NewProfileRepoCacheDecorator(inner, cache, time.Minute).FindByID(ctx, nil, "user-1")
		require.NoError(t, err)
		require.NotNil(t, got.SubscriptionEndDate)
		assert.True(t, end.Equal(*got.SubscriptionEndDate))
	})

	t.Run("not found is not cached", func(t *testing.T) {
		cache := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", redis.Nil },
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				t.Fatal("nothing should be cached")
				return nil
			},
		}
		inner := &mockInnerProfileRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, userID string) (*model.Profile, error) {
				return nil, domain.ErrNotFound
			},
		}
		_, err := NewProfileRepoCacheDecorator(inner, cache, time.Minute).FindByID(ctx, nil, "ghost")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("activation invalidates the cached row", func(t *testing.T) {
		var deleted []string
		cache := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deleted = append(deleted, keys...)
				return nil
			},
		}
		inner := &mockInnerProfileRepo{
			ActivateSubscriptionFunc: func(ctx context.Context, tx repository.Tx, userID, plan string, endDate time.Time) error {
				return nil
			},
		}
		err := NewProfileRepoCacheDecorator(inner, cache, time.Minute).ActivateSubscription(ctx, nil, "user-1", "professional", end)
		require.NoError(t, err)
		assert.Equal(t, []string{"profile:id:user-1"}, deleted)
	})
}
