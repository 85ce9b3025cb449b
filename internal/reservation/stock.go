package reservation

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func (c *Coordinator) stockedProduct(ctx context.Context, productID string) (*orders.Product, error) {
	p, err := c.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, translate(err)
	}
	if !p.Kind.Stocked() {
		return nil, fmt.Errorf("%w: product %s (%s) has no stock", ErrValidation, productID, p.Kind)
	}
	c.ledger.Track(p.ID, p.Stock)
	return p, nil
}

// Restock credits qty units to the ledger and the stored count as one commit.
func (c *Coordinator) Restock(ctx context.Context, productID string, qty int) (err error) {
	ctx, span := c.inst.start(ctx, "restock", attribute.String("product.id", productID))
	defer func() { c.inst.finish(ctx, span, "restock", err) }()

	if qty <= 0 {
		return fmt.Errorf("%w: restock quantity %d", ErrValidation, qty)
	}
	if _, err := c.stockedProduct(ctx, productID); err != nil {
		return err
	}
	_, err = retry(ctx, c, "restock", func(ctx context.Context) (struct{}, error) {
		batch, err := c.ledger.Begin(ctx, []string{productID})
		if err != nil {
			return struct{}{}, translate(err)
		}
		defer batch.Rollback()
		if err := batch.Credit(productID, qty); err != nil {
			return struct{}{}, translate(err)
		}
		if err := c.records.AdjustStock(ctx, productID, qty); err != nil {
			return struct{}{}, fmt.Errorf("adjust stock: %w", translate(err))
		}
		return struct{}{}, batch.Commit()
	})
	if err == nil {
		c.log.Info("restocked", zap.String("product_id", productID), zap.Int("qty", qty))
	}
	return err
}

// StockLevel is the ledger's current count for a stocked product.
func (c *Coordinator) StockLevel(ctx context.Context, productID string) (int, error) {
	if _, err := c.stockedProduct(ctx, productID); err != nil {
		return 0, err
	}
	return retry(ctx, c, "stock_level", func(ctx context.Context) (int, error) {
		n, err := c.ledger.Available(ctx, productID)
		return n, translate(err)
	})
}
