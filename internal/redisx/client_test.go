package redisx

import (
	"context"
	"fmt"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestClaim(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	key := fmt.Sprintf(KeyIdemCheckout, "cart-1", "k1")
	ok, _, err := Claim(ctx, rdb, key, Pending, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, rdb.Set(ctx, key, "order-9", time.Minute).Err())
	ok, existing, err := Claim(ctx, rdb, key, Pending, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "order-9", existing)

	found, err := Exists(ctx, rdb, key)
	require.NoError(t, err)
	assert.True(t, found)

	mr.FastForward(2 * time.Minute)
	found, _ = Exists(ctx, rdb, key)
	assert.False(t, found)
}
