package reservation

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-rental-storefront/internal/locks"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"time"
)

// Checkout turns the cart into an order. Either every line is reserved and
// the order is stored, or stock is left exactly as it was and no order exists.
func (c *Coordinator) Checkout(ctx context.Context, cartID, userID string) (*orders.Order, error) {
	return c.CheckoutWithKey(ctx, cartID, userID, "")
}

// CheckoutWithKey is Checkout with a client idempotency key stored on the
// order. A key that was already used fails with ErrDuplicate.
func (c *Coordinator) CheckoutWithKey(ctx context.Context, cartID, userID, key string) (o *orders.Order, err error) {
	ctx, span := c.inst.start(ctx, "checkout", attribute.String("cart.id", cartID))
	defer func() { c.inst.finish(ctx, span, "checkout", err) }()

	if cartID == "" || userID == "" {
		return nil, fmt.Errorf("%w: cart and user are required", ErrValidation)
	}
	o, err = retry(ctx, c, "checkout", func(ctx context.Context) (*orders.Order, error) {
		return c.checkoutOnce(ctx, cartID, userID, key)
	})
	if err != nil {
		c.log.Info("checkout failed", zap.String("cart_id", cartID), zap.String("code", Code(err)), zap.Error(err))
		return nil, err
	}

	c.log.Info("order placed",
		zap.String("order_id", o.ID), zap.String("cart_id", cartID),
		zap.Int("lines", len(o.Items)), zap.Int("total_cents", o.TotalCents))
	c.emit(ctx, orders.TopicOrderPlaced, orders.EventOrderPlaced, o.ID, orders.OrderPlacedPayload{
		OrderID: o.ID, ExternalID: o.ExternalID, UserID: o.UserID, CartID: o.CartID,
		Items: o.Items, TotalCents: o.TotalCents,
	})
	return o, nil
}

// priceLines validates every cart line against the catalog and snapshots the
// selling price.
func (c *Coordinator) priceLines(ctx context.Context, cartID string) ([]orders.OrderItem, []string, error) {
	items, err := c.cart.ListItems(ctx, cartID)
	if err != nil {
		return nil, nil, translate(err)
	}
	if len(items) == 0 {
		return nil, nil, fmt.Errorf("%w: cart %s is empty", ErrValidation, cartID)
	}

	lines := make([]orders.OrderItem, 0, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, nil, fmt.Errorf("%w: product %s quantity %d", ErrValidation, it.ProductID, it.Quantity)
		}
		p, err := c.catalog.GetProduct(ctx, it.ProductID)
		if errors.Is(err, orders.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: unknown product %s", ErrValidation, it.ProductID)
		}
		if err != nil {
			return nil, nil, err
		}
		if !p.Kind.Stocked() {
			return nil, nil, fmt.Errorf("%w: product %s (%s) cannot be checked out", ErrValidation, p.ID, p.Kind)
		}
		if !p.Available {
			return nil, nil, fmt.Errorf("%w: product %s is not available", ErrValidation, p.ID)
		}
		c.ledger.Track(p.ID, p.Stock)
		lines = append(lines, orders.OrderItem{ProductID: p.ID, Qty: it.Quantity, PriceCents: p.SellingPriceCents()})
		ids = append(ids, p.ID)
	}
	return lines, ids, nil
}

func (c *Coordinator) checkoutOnce(ctx context.Context, cartID, userID, key string) (*orders.Order, error) {
	releaseCart, err := c.carts.Acquire(ctx, cartID)
	if errors.Is(err, locks.ErrTimeout) {
		return nil, fmt.Errorf("%w: cart %s", ErrBusy, cartID)
	}
	if err != nil {
		return nil, err
	}
	defer releaseCart()

	lines, ids, err := c.priceLines(ctx, cartID)
	if err != nil {
		return nil, err
	}

	in := &orders.Intent{ID: uuid.NewString(), Kind: orders.IntentCheckout, Ref: cartID}
	if err := c.records.OpenIntent(ctx, in); err != nil {
		return nil, fmt.Errorf("open intent: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			c.abort(ctx, in.ID)
		}
	}()

	batch, err := c.ledger.Begin(ctx, ids)
	if err != nil {
		return nil, translate(err)
	}
	defer batch.Rollback()

	// reserve in cart order; the first shortage names the product
	total := 0
	for _, l := range lines {
		if err := batch.Reserve(l.ProductID, l.Qty); err != nil {
			return nil, translate(err)
		}
		total += l.PriceCents * l.Qty
	}

	o := &orders.Order{
		ID:         uuid.NewString(),
		ExternalID: key,
		UserID:     userID,
		CartID:     cartID,
		Status:     orders.OrderPlaced,
		TotalCents: total,
		Items:      lines,
	}
	if err := c.records.CommitOrder(ctx, in.ID, o); err != nil {
		closed = true
		landed, serr := c.settle(ctx, in.ID)
		if serr != nil {
			// keep the decrement: the ledger reads low until Recover reloads stored stock
			_ = batch.Commit()
			c.log.Error("order commit outcome unknown",
				zap.String("order_id", o.ID), zap.String("intent_id", in.ID), zap.Error(err), zap.NamedError("settle", serr))
			return nil, backoff.Permanent(fmt.Errorf("%w: order %s: %w", ErrUnknownOutcome, o.ID, err))
		}
		if !landed {
			err = translate(err)
			if errors.Is(err, ErrDuplicate) {
				return nil, backoff.Permanent(err)
			}
			if errors.Is(err, orders.ErrStockMismatch) {
				c.log.Error("stored stock disagrees with ledger", zap.String("intent_id", in.ID), zap.Error(err))
			}
			return nil, fmt.Errorf("commit order: %w", err)
		}
		c.log.Warn("order commit reported an error but was stored", zap.String("order_id", o.ID), zap.Error(err))
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if got, gerr := c.records.GetOrder(rctx, o.ID); gerr == nil {
			o = got
		}
		cancel()
	}
	closed = true
	if err := batch.Commit(); err != nil {
		return nil, err
	}

	if err := c.cart.Clear(ctx, cartID); err != nil {
		// order is durable; a stale cart is only cosmetic
		c.log.Warn("clear cart after checkout failed", zap.String("cart_id", cartID), zap.String("order_id", o.ID), zap.Error(err))
	}
	return o, nil
}
