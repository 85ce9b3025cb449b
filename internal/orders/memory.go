package orders

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryRepo implements the same contract as Repo in process memory. Every
// commit runs under one mutex, which stands in for the transaction.
type MemoryRepo struct {
	mu       sync.Mutex
	now      func() time.Time
	products map[string]Product
	orders   map[string]Order
	external map[string]string
	rentals  map[string]Rental
	intents  map[string]Intent
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		now:      func() time.Time { return time.Now().UTC() },
		products: map[string]Product{},
		orders:   map[string]Order{},
		external: map[string]string{},
		rentals:  map[string]Rental{},
		intents:  map[string]Intent{},
	}
}

// WithClock replaces the time source; used by tests.
func (m *MemoryRepo) WithClock(now func() time.Time) *MemoryRepo {
	m.now = now
	return m
}

func (m *MemoryRepo) GetProduct(_ context.Context, id string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (m *MemoryRepo) ListProducts(context.Context) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (m *MemoryRepo) UpsertProduct(_ context.Context, p Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if old, ok := m.products[p.ID]; ok {
		p.Stock = old.Stock
		p.CreatedAt = old.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.products[p.ID] = p
	return nil
}

func (m *MemoryRepo) AdjustStock(_ context.Context, productID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	if p.Stock+delta < 0 {
		return fmt.Errorf("product %s: %w", productID, ErrStockMismatch)
	}
	p.Stock += delta
	p.UpdatedAt = m.now()
	m.products[productID] = p
	return nil
}

func (m *MemoryRepo) OpenIntent(_ context.Context, in *Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[in.ID]; ok {
		return fmt.Errorf("intent %s: %w", in.ID, ErrAlreadyExists)
	}
	in.State = IntentOpen
	in.CreatedAt = m.now()
	in.UpdatedAt = in.CreatedAt
	m.intents[in.ID] = *in
	return nil
}

// closeIntent must be called with mu held.
func (m *MemoryRepo) closeIntent(id string, state IntentState) error {
	in, ok := m.intents[id]
	if !ok || in.State != IntentOpen {
		return ErrIntentClosed
	}
	in.State = state
	in.UpdatedAt = m.now()
	m.intents[id] = in
	return nil
}

func (m *MemoryRepo) AbortIntent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.closeIntent(id, IntentAborted)
	return nil
}

func (m *MemoryRepo) ReclaimIntents(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, in := range m.intents {
		if in.State == IntentOpen && in.CreatedAt.Before(before) {
			_ = m.closeIntent(id, IntentReclaimed)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepo) GetIntent(_ context.Context, id string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.intents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &in, nil
}

func (m *MemoryRepo) CommitOrder(_ context.Context, intentID string, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.intents[intentID]
	if !ok || in.State != IntentOpen {
		return ErrIntentClosed
	}
	if o.ExternalID != "" {
		if _, dup := m.external[o.ExternalID]; dup {
			return ErrAlreadyExists
		}
	}
	// validate everything before touching state
	need := map[string]int{}
	for _, it := range o.Items {
		need[it.ProductID] += it.Qty
	}
	for pid, q := range need {
		p, ok := m.products[pid]
		if !ok {
			return fmt.Errorf("product %s: %w", pid, ErrNotFound)
		}
		if p.Stock < q {
			return fmt.Errorf("product %s: %w", pid, ErrStockMismatch)
		}
	}

	now := m.now()
	_ = m.closeIntent(intentID, IntentCommitted)
	for pid, q := range need {
		p := m.products[pid]
		p.Stock -= q
		p.UpdatedAt = now
		m.products[pid] = p
	}
	o.CreatedAt = now
	stored := *o
	stored.Items = slices.Clone(o.Items)
	m.orders[o.ID] = stored
	if o.ExternalID != "" {
		m.external[o.ExternalID] = o.ID
	}
	return nil
}

func (m *MemoryRepo) CommitRental(_ context.Context, intentID string, rt *Rental) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in, ok := m.intents[intentID]; !ok || in.State != IntentOpen {
		return ErrIntentClosed
	}
	// sama dengan EXCLUDE constraint di schema
	for _, o := range m.rentals {
		if o.MachineID == rt.MachineID && o.Status.Blocking(true) &&
			o.Start.Before(rt.End) && rt.Start.Before(o.End) {
			return fmt.Errorf("rental %s overlaps %s: %w", rt.ID, o.ID, ErrRangeTaken)
		}
	}
	if err := m.closeIntent(intentID, IntentCommitted); err != nil {
		return err
	}
	rt.CreatedAt = m.now()
	rt.UpdatedAt = rt.CreatedAt
	m.rentals[rt.ID] = *rt
	return nil
}

func (m *MemoryRepo) GetOrder(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func (m *MemoryRepo) GetRental(_ context.Context, id string) (*Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.rentals[id]
	if !ok {
		return nil, fmt.Errorf("rental %s: %w", id, ErrNotFound)
	}
	return &rt, nil
}

func (m *MemoryRepo) TransitionRental(_ context.Context, id string, from, to Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.rentals[id]
	if !ok {
		return fmt.Errorf("rental %s: %w", id, ErrNotFound)
	}
	if rt.Status != from {
		return ErrStaleStatus
	}
	rt.Status = to
	rt.UpdatedAt = at
	m.rentals[id] = rt
	return nil
}

func (m *MemoryRepo) BlockingRentals(_ context.Context, pruneCompleted bool) ([]Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Rental
	for _, rt := range m.rentals {
		if rt.Status.Blocking(pruneCompleted) {
			out = append(out, rt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MachineID != out[j].MachineID {
			return out[i].MachineID < out[j].MachineID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}
