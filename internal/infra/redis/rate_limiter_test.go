package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterClient struct {
	RedisClient
	counts  map[string]int64
	expires map[string]time.Duration
	incrErr error
}

func (c *counterClient) Incr(ctx context.Context, key string) (int64, error) {
	if c.incrErr != nil {
		return 0, c.incrErr
	}
	c.counts[key]++
	return c.counts[key], nil
}

func (c *counterClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	c.expires[key] = ttl
	return nil
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	cli := &counterClient{counts: map[string]int64{}, expires: map[string]time.Duration{}}
	rl := NewRateLimiter(cli)
	key := "rate_limit:stk_push:user-1"

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(context.Background(), key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}
	ok, err := rl.Allow(context.Background(), key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, cli.expires[key])
}

func TestRateLimiter_PropagatesErrors(t *testing.T) {
	cli := &counterClient{incrErr: errors.New("down")}
	_, err := NewRateLimiter(cli).Allow(context.Background(), "k", 1, time.Second)
	assert.Error(t, err)
}
