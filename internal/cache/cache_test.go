package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}

	require.NoError(t, c.Set(ctx, "user:1", "Ada", time.Minute))
	_, err := c.Get(ctx, "user:1")
	assert.ErrorIs(t, err, ErrMiss)

	n, err := c.Del(ctx, "user:1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "")
	assert.Error(t, err)

	_, err = NewRedis(context.Background(), "http://not-redis")
	assert.Error(t, err)
}
