package cart

import (
	"context"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math"
	"testing"
	"time"
)

func stores(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(rdb, time.Hour),
	}
}

func TestAggregator(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := NewAggregator(store)

			require.NoError(t, a.AddItem(ctx, "c1", "B", 1))
			require.NoError(t, a.AddItem(ctx, "c1", "A", 2))
			require.NoError(t, a.AddItem(ctx, "c1", "B", 3)) // merges

			items, err := a.ListItems(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, []Item{{"B", 4}, {"A", 2}}, items)

			require.NoError(t, a.UpdateItem(ctx, "c1", "A", 7))
			assert.ErrorIs(t, a.UpdateItem(ctx, "c1", "Z", 1), ErrItemNotFound)

			require.NoError(t, a.RemoveItem(ctx, "c1", "B"))
			require.NoError(t, a.RemoveItem(ctx, "c1", "B"))
			items, err = a.ListItems(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, []Item{{"A", 7}}, items)

			// re-added product goes to the end
			require.NoError(t, a.AddItem(ctx, "c1", "B", 1))
			items, _ = a.ListItems(ctx, "c1")
			assert.Equal(t, []Item{{"A", 7}, {"B", 1}}, items)

			// other carts are isolated
			other, err := a.ListItems(ctx, "c2")
			require.NoError(t, err)
			assert.Empty(t, other)

			require.NoError(t, a.Clear(ctx, "c1"))
			items, err = a.ListItems(ctx, "c1")
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

func TestAggregatorValidation(t *testing.T) {
	ctx := context.Background()
	a := NewAggregator(NewMemoryStore())
	assert.ErrorIs(t, a.AddItem(ctx, "c", "A", 0), ErrInvalidQuantity)
	assert.ErrorIs(t, a.AddItem(ctx, "c", "A", -1), ErrInvalidQuantity)
	assert.ErrorIs(t, a.UpdateItem(ctx, "c", "A", 0), ErrInvalidQuantity)
	assert.ErrorIs(t, a.AddItem(ctx, "", "A", 1), ErrInvalidID)
	assert.ErrorIs(t, a.RemoveItem(ctx, "c", ""), ErrInvalidID)
}

func TestRedisStoreTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStore(rdb, time.Minute)
	require.NoError(t, s.Add(ctx, "c", "A", 1))
	assert.Equal(t, time.Minute, mr.TTL("cart:c:items"))

	mr.FastForward(2 * time.Minute)
	items, err := s.List(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAddCapsMergedQuantity(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := NewAggregator(store)

			require.NoError(t, a.AddItem(ctx, "c1", "A", MaxQuantity-1))
			assert.ErrorIs(t, a.AddItem(ctx, "c1", "A", 2), ErrInvalidQuantity)
			require.NoError(t, a.AddItem(ctx, "c1", "A", 1))
			assert.ErrorIs(t, a.AddItem(ctx, "c1", "A", 1), ErrInvalidQuantity)
			assert.ErrorIs(t, a.AddItem(ctx, "c1", "B", MaxQuantity+1), ErrInvalidQuantity)
			assert.ErrorIs(t, a.AddItem(ctx, "c1", "B", math.MaxInt), ErrInvalidQuantity)

			items, err := a.ListItems(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, []Item{{"A", MaxQuantity}}, items)
		})
	}
}

func TestRedisAddRejectsOverflowingLine(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	// line already past the cap, e.g. written before the cap existed
	mr.HSet("cart:c:items", "A", "9223372036854775800")
	require.NoError(t, rdb.RPush(ctx, "cart:c:order", "A").Err())

	s := NewRedisStore(rdb, time.Minute)
	assert.ErrorIs(t, s.Add(ctx, "c", "A", 9), ErrInvalidQuantity)
	assert.Equal(t, "9223372036854775800", mr.HGet("cart:c:items", "A"))
}

type stockMap map[string]int

func (m stockMap) Peek(id string) (int, bool) {
	n, ok := m[id]
	return n, ok
}

func TestLinesReportStock(t *testing.T) {
	ctx := context.Background()
	a := NewAggregator(NewMemoryStore()).WithStock(stockMap{"A": 5, "B": 1})

	require.NoError(t, a.AddItem(ctx, "c1", "A", 2))
	require.NoError(t, a.AddItem(ctx, "c1", "B", 3))
	require.NoError(t, a.AddItem(ctx, "c1", "M1", 1))

	lines, err := a.Lines(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, 5, *lines[0].Available)
	assert.True(t, lines[0].InStock)
	assert.Equal(t, 1, *lines[1].Available)
	assert.False(t, lines[1].InStock)
	assert.Nil(t, lines[2].Available)
	assert.True(t, lines[2].InStock)

	// without a reader lines carry no hint
	plain, err := NewAggregator(NewMemoryStore()).Lines(ctx, "empty")
	require.NoError(t, err)
	assert.NotNil(t, plain)
	assert.Empty(t, plain)
}
