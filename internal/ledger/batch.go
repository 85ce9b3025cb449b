package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
)

type entry struct {
	productID string
	delta     int
}

// Batch holds the locks of a fixed product set. Reservations made through it
// are provisional until Commit; Rollback undoes them in reverse order.
type Batch struct {
	l       *Ledger
	ids     []string
	release func()
	applied []entry
	done    bool
}

// Begin locks ids in ascending order. A lock that cannot be taken within the
// ledger's wait fails the whole call with ErrBusy and nothing stays locked.
func (l *Ledger) Begin(ctx context.Context, ids []string) (*Batch, error) {
	for _, id := range ids {
		if _, err := l.counter(id); err != nil {
			return nil, err
		}
	}
	release, err := l.lock(ctx, ids...)
	if err != nil {
		return nil, err
	}
	return &Batch{l: l, ids: slices.Clone(ids), release: release}, nil
}

func (b *Batch) guard(productID string, qty int) (*atomic.Int64, error) {
	if b.done {
		return nil, ErrBatchDone
	}
	if qty <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	if !slices.Contains(b.ids, productID) {
		return nil, fmt.Errorf("ledger: product %s not locked by batch", productID)
	}
	return b.l.counter(productID)
}

// Reserve: cek stok lalu kurangi, dalam satu langkah di bawah lock batch.
func (b *Batch) Reserve(productID string, qty int) error {
	p, err := b.guard(productID, qty)
	if err != nil {
		return err
	}
	if have := int(p.Load()); have < qty {
		return &ShortageError{ProductID: productID, Requested: qty, Available: have}
	}
	p.Add(int64(-qty))
	b.applied = append(b.applied, entry{productID: productID, delta: -qty})
	return nil
}

// Credit adds qty to the product; undone by Rollback like a reservation.
func (b *Batch) Credit(productID string, qty int) error {
	p, err := b.guard(productID, qty)
	if err != nil {
		return err
	}
	p.Add(int64(qty))
	b.applied = append(b.applied, entry{productID: productID, delta: qty})
	return nil
}

// Rollback reverts every provisional change, newest first, and releases the
// locks. After Commit it does nothing, so it is safe to defer.
func (b *Batch) Rollback() {
	if b.done {
		return
	}
	b.done = true
	for i := len(b.applied) - 1; i >= 0; i-- {
		e := b.applied[i]
		if p, err := b.l.counter(e.productID); err == nil {
			p.Add(int64(-e.delta))
		}
	}
	b.applied = nil
	b.release()
}

// Commit makes the batch's changes permanent and releases the locks.
func (b *Batch) Commit() error {
	if b.done {
		return ErrBatchDone
	}
	b.done = true
	b.applied = nil
	b.release()
	return nil
}
