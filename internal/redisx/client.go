package redisx

import (
	"context"
	"errors"
	"github.com/redis/go-redis/v9"
	"time"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.UniversalClient, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Claim sets key to val only if absent. When the key is already taken it
// returns false and the stored value.
func Claim(ctx context.Context, rdb redis.UniversalClient, key, val string, ttl time.Duration) (ok bool, existing string, err error) {
	ok, err = rdb.SetNX(ctx, key, val, ttl).Result()
	if err != nil || ok {
		return ok, "", err
	}
	existing, err = rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired in between; caller may retry
		return false, "", nil
	}
	return false, existing, err
}
