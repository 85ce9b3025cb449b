// Package cart accumulates line items per cart before checkout. It performs
// no stock validation; that happens when the cart is checked out. Reads may
// carry the current stock level as a hint.
package cart

import (
	"context"
	"errors"
	"fmt"
)

// MaxQuantity caps a single line, merged adds included.
const MaxQuantity = 9999

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be between 1 and 9999")
	ErrItemNotFound    = errors.New("cart: item not found")
	ErrInvalidID       = errors.New("cart: empty id")
)

type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Store persists cart lines. One line per product; List returns lines in the
// order the products were first added.
type Store interface {
	Add(ctx context.Context, cartID, productID string, qty int) error
	Set(ctx context.Context, cartID, productID string, qty int) error
	Remove(ctx context.Context, cartID, productID string) error
	List(ctx context.Context, cartID string) ([]Item, error)
	Clear(ctx context.Context, cartID string) error
}

// StockReader gives a lock-free view of on-hand stock.
type StockReader interface {
	Peek(productID string) (int, bool)
}

// Line is an Item plus the stock seen when the cart was read. Available is
// nil for products without a stock count (rental machines, unknown ids).
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Available *int   `json:"available_stock,omitempty"`
	InStock   bool   `json:"in_stock"`
}

type Aggregator struct {
	store Store
	stock StockReader
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

func check(cartID, productID string, qty int) error {
	if cartID == "" || productID == "" {
		return ErrInvalidID
	}
	if qty < 1 || qty > MaxQuantity {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	return nil
}

// WithStock makes Lines report stock from r.
func (a *Aggregator) WithStock(r StockReader) *Aggregator {
	a.stock = r
	return a
}

// AddItem merges qty into the existing line or appends a new one. A merge
// that would pass MaxQuantity fails with ErrInvalidQuantity.
func (a *Aggregator) AddItem(ctx context.Context, cartID, productID string, qty int) error {
	if err := check(cartID, productID, qty); err != nil {
		return err
	}
	return a.store.Add(ctx, cartID, productID, qty)
}

// UpdateItem sets an existing line to qty.
func (a *Aggregator) UpdateItem(ctx context.Context, cartID, productID string, qty int) error {
	if err := check(cartID, productID, qty); err != nil {
		return err
	}
	return a.store.Set(ctx, cartID, productID, qty)
}

func (a *Aggregator) RemoveItem(ctx context.Context, cartID, productID string) error {
	if cartID == "" || productID == "" {
		return ErrInvalidID
	}
	return a.store.Remove(ctx, cartID, productID)
}

func (a *Aggregator) ListItems(ctx context.Context, cartID string) ([]Item, error) {
	if cartID == "" {
		return nil, ErrInvalidID
	}
	return a.store.List(ctx, cartID)
}

func (a *Aggregator) Clear(ctx context.Context, cartID string) error {
	if cartID == "" {
		return ErrInvalidID
	}
	return a.store.Clear(ctx, cartID)
}

// Lines lists the cart with a stock hint per line. Nothing is reserved: stock
// can change before checkout, which still decides.
func (a *Aggregator) Lines(ctx context.Context, cartID string) ([]Line, error) {
	items, err := a.ListItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	out := make([]Line, 0, len(items))
	for _, it := range items {
		l := Line{ProductID: it.ProductID, Quantity: it.Quantity, InStock: true}
		if a.stock != nil {
			if n, ok := a.stock.Peek(it.ProductID); ok {
				l.Available = &n
				l.InStock = n >= it.Quantity
			}
		}
		out = append(out, l)
	}
	return out, nil
}
