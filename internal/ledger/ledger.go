// Package ledger holds the authoritative per-product stock count. Every
// check-and-decrement happens while the product's lock is held.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-rental-storefront/internal/locks"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	ErrUnknownProduct    = errors.New("ledger: unknown product")
	ErrInvalidQuantity   = errors.New("ledger: quantity must be positive")
	ErrBusy              = errors.New("ledger: product locked")
	ErrBatchDone         = errors.New("ledger: batch already finished")
)

// ShortageError carries what was asked for vs what was on hand.
type ShortageError struct {
	ProductID string
	Requested int
	Available int
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("ledger: product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *ShortageError) Unwrap() error { return ErrInsufficientStock }

type Ledger struct {
	locks *locks.Table

	mu    sync.RWMutex // guards the map, not the counts
	stock map[string]*atomic.Int64
}

func New(lockWait time.Duration) *Ledger {
	return &Ledger{locks: locks.NewTable(lockWait), stock: map[string]*atomic.Int64{}}
}

// Load sets the on-hand count for a product. Only used while seeding
// (Recover / tests), before the ledger is serving reservations.
func (l *Ledger) Load(productID string, qty int) {
	if qty < 0 {
		qty = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.stock[productID]
	if !ok {
		p = new(atomic.Int64)
		l.stock[productID] = p
	}
	p.Store(int64(qty))
}

func (l *Ledger) counter(productID string) (*atomic.Int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.stock[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	return p, nil
}

func (l *Ledger) lock(ctx context.Context, ids ...string) (func(), error) {
	release, err := l.locks.Acquire(ctx, ids...)
	if errors.Is(err, locks.ErrTimeout) {
		return nil, fmt.Errorf("%w: %v", ErrBusy, ids)
	}
	return release, err
}

// Available reads the current count under the product lock.
func (l *Ledger) Available(ctx context.Context, productID string) (int, error) {
	p, err := l.counter(productID)
	if err != nil {
		return 0, err
	}
	release, err := l.lock(ctx, productID)
	if err != nil {
		return 0, err
	}
	defer release()
	return int(p.Load()), nil
}

// Peek reads the count without taking the product lock. The value can be
// stale by the time the caller looks at it; only Reserve decides.
func (l *Ledger) Peek(productID string) (int, bool) {
	p, err := l.counter(productID)
	if err != nil {
		return 0, false
	}
	return int(p.Load()), true
}

// Reserve decrements stock by qty, or fails with a *ShortageError leaving
// the count untouched.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	b, err := l.Begin(ctx, []string{productID})
	if err != nil {
		return err
	}
	defer b.Rollback()
	if err := b.Reserve(productID, qty); err != nil {
		return err
	}
	return b.Commit()
}

// Release credits qty back. It is the compensating action for Reserve.
func (l *Ledger) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	b, err := l.Begin(ctx, []string{productID})
	if err != nil {
		return err
	}
	defer b.Rollback()
	if err := b.Credit(productID, qty); err != nil {
		return err
	}
	return b.Commit()
}

// Track registers a product with qty on hand unless it is already known.
// Reports whether the product was added.
func (l *Ledger) Track(productID string, qty int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.stock[productID]; ok {
		return false
	}
	if qty < 0 {
		qty = 0
	}
	p := new(atomic.Int64)
	p.Store(int64(qty))
	l.stock[productID] = p
	return true
}
