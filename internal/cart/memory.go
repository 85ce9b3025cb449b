package cart

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

type memCart struct {
	order []string
	qty   map[string]int
}

// MemoryStore keeps carts in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]*memCart
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: map[string]*memCart{}}
}

func (s *MemoryStore) get(cartID string) *memCart {
	c, ok := s.carts[cartID]
	if !ok {
		c = &memCart{qty: map[string]int{}}
		s.carts[cartID] = c
	}
	return c
}

func (s *MemoryStore) Add(_ context.Context, cartID, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.get(cartID)
	cur, ok := c.qty[productID]
	if cur+qty > MaxQuantity {
		return fmt.Errorf("%w: line would hold %d", ErrInvalidQuantity, cur+qty)
	}
	if !ok {
		c.order = append(c.order, productID)
	}
	c.qty[productID] = cur + qty
	return nil
}

func (s *MemoryStore) Set(_ context.Context, cartID, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartID]
	if !ok {
		return ErrItemNotFound
	}
	if _, ok := c.qty[productID]; !ok {
		return ErrItemNotFound
	}
	c.qty[productID] = qty
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, cartID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartID]
	if !ok {
		return nil
	}
	if _, ok := c.qty[productID]; !ok {
		return nil
	}
	delete(c.qty, productID)
	c.order = slices.DeleteFunc(c.order, func(id string) bool { return id == productID })
	return nil
}

func (s *MemoryStore) List(_ context.Context, cartID string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartID]
	if !ok {
		return nil, nil
	}
	out := make([]Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, Item{ProductID: id, Quantity: c.qty[id]})
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, cartID)
	return nil
}
