package locks

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrTimeout: lock tidak didapat dalam batas wait.
var ErrTimeout = errors.New("locks: wait timed out")

// slot is one named mutex. refs counts holders plus waiters; the slot leaves
// the table when it drops to zero.
type slot struct {
	ch   chan struct{}
	refs int
}

// Table is a set of named mutexes. Keys are always acquired in ascending
// order so two callers locking overlapping key sets cannot deadlock. Only
// keys somebody holds or waits for take memory.
type Table struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

func NewTable(wait time.Duration) *Table {
	if wait <= 0 {
		wait = time.Second
	}
	return &Table{wait: wait, slots: map[string]*slot{}}
}

func (t *Table) ref(keys []string) []*slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*slot, len(keys))
	for i, k := range keys {
		s, ok := t.slots[k]
		if !ok {
			s = &slot{ch: make(chan struct{}, 1)}
			t.slots[k] = s
		}
		s.refs++
		out[i] = s
	}
	return out
}

func (t *Table) unref(keys []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		s := t.slots[k]
		if s.refs--; s.refs == 0 {
			delete(t.slots, k)
		}
	}
}

func (t *Table) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// Acquire locks every key (duplicates collapse) or none of them. It waits at
// most the table's wait, or less when ctx expires first. The returned release
// func is safe to call more than once.
func (t *Table) Acquire(ctx context.Context, keys ...string) (release func(), err error) {
	ordered := slices.Clone(keys)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	timer := time.NewTimer(t.wait)
	defer timer.Stop()

	slots := t.ref(ordered)
	held := 0
	unlock := func() {
		for i := held - 1; i >= 0; i-- {
			<-slots[i].ch
		}
		t.unref(ordered)
	}

	for _, s := range slots {
		select {
		case s.ch <- struct{}{}:
			held++
		case <-timer.C:
			unlock()
			return nil, ErrTimeout
		case <-ctx.Done():
			unlock()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(unlock) }, nil
}
