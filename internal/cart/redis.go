package cart

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-rental-storefront/internal/redisx"
	"github.com/redis/go-redis/v9"
	"strconv"
	"time"
)

// add: tolak kalau melebihi batas (-1), RPUSH hanya kalau line baru.
var addScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local n = cur + tonumber(ARGV[2])
if n > tonumber(ARGV[4]) then
  return -1
end
redis.call('HSET', KEYS[1], ARGV[1], n)
if cur == 0 then
  redis.call('RPUSH', KEYS[2], ARGV[1])
end
redis.call('PEXPIRE', KEYS[1], ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
return n
`)

var setScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
return 1
`)

// RedisStore keeps each cart as a hash of quantities plus a list holding
// first-add order. Both keys share a sliding TTL.
type RedisStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = redisx.TTLCart
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func keys(cartID string) []string {
	return []string{fmt.Sprintf(redisx.KeyCartItems, cartID), fmt.Sprintf(redisx.KeyCartOrder, cartID)}
}

func (s *RedisStore) Add(ctx context.Context, cartID, productID string, qty int) error {
	n, err := addScript.Run(ctx, s.rdb, keys(cartID), productID, qty, s.ttl.Milliseconds(), MaxQuantity).Int()
	if err != nil {
		return fmt.Errorf("cart add %s: %w", cartID, err)
	}
	if n < 0 {
		return fmt.Errorf("%w: cart %s product %s", ErrInvalidQuantity, cartID, productID)
	}
	return nil
}

func (s *RedisStore) Set(ctx context.Context, cartID, productID string, qty int) error {
	n, err := setScript.Run(ctx, s.rdb, keys(cartID), productID, qty, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("cart set %s: %w", cartID, err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, cartID, productID string) error {
	k := keys(cartID)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, k[0], productID)
		p.LRem(ctx, k[1], 0, productID)
		return nil
	})
	return err
}

func (s *RedisStore) List(ctx context.Context, cartID string) ([]Item, error) {
	k := keys(cartID)
	var order *redis.StringSliceCmd
	var qty *redis.MapStringStringCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		order = p.LRange(ctx, k[1], 0, -1)
		qty = p.HGetAll(ctx, k[0])
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	q := qty.Val()
	out := make([]Item, 0, len(q))
	for _, pid := range order.Val() {
		raw, ok := q[pid]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("cart %s: bad quantity for %s: %w", cartID, pid, err)
		}
		out = append(out, Item{ProductID: pid, Quantity: n})
	}
	return out, nil
}

func (s *RedisStore) Clear(ctx context.Context, cartID string) error {
	return s.rdb.Del(ctx, keys(cartID)...).Err()
}
