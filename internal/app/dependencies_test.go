package app

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"
)

func TestNewLimiterStore(t *testing.T) {
	rate := limiter.Rate{Period: time.Minute, Limit: 1}

	local, err := NewLimiterStore(nil)
	require.NoError(t, err)
	lc, err := limiter.New(local, rate).Get(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, lc.Reached)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	shared, err := NewLimiterStore(rdb)
	require.NoError(t, err)
	l := limiter.New(shared, rate)
	_, err = l.Get(context.Background(), "k")
	require.NoError(t, err)
	lc, err = l.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, lc.Reached)
}
