//go:build !integration

package postgres

import (
	"context"
	"time"

	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/repository"
	red "sme-compliance/internal/infra/redis"
)

// mockInnerProfileRepo mocks the database repository that the Profile decorator wraps.
type mockInnerProfileRepo struct {
	FindByIDFunc             func(ctx context.Context, tx repository.Tx, userID string) (*model.Profile, error)
	ActivateSubscriptionFunc func(ctx context.Context, tx repository.Tx, userID, plan string, endDate time.Time) error
	ListEndingBetweenFunc    func(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Profile, error)
}

func (m *mockInnerProfileRepo) FindByID(ctx context.Context, tx repository.Tx, userID string) (*model.Profile, error) {
	return m.FindByIDFunc(ctx, tx, userID)
}
func (m *mockInnerProfileRepo) ActivateSubscription(ctx context.Context, tx repository.Tx, userID, plan string, endDate time.Time) error {
	return m.ActivateSubscriptionFunc(ctx, tx, userID, plan, endDate)
}
func (m *mockInnerProfileRepo) ListEndingBetween(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Profile, error) {
	return m.ListEndingBetweenFunc(ctx, tx, from, to)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
