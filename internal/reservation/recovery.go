package reservation

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-rental-storefront/internal/calendar"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"time"
)

// Reclaim closes intents left OPEN for longer than the lease: attempts whose
// abort write failed or whose process died. Their in-memory reservations are
// already gone (rolled back, or lost with the process); closing the intent
// guarantees they can never commit.
func (c *Coordinator) Reclaim(ctx context.Context) (int, error) {
	n, err := c.records.ReclaimIntents(ctx, c.now().Add(-c.opts.Lease))
	if err != nil {
		return 0, fmt.Errorf("reclaim intents: %w", err)
	}
	if n > 0 {
		c.inst.reclaimed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("trigger", "lease")))
		c.log.Warn("reclaimed stale intents", zap.Int("count", n))
	}
	return n, nil
}

// Recover rebuilds the ledger and calendar from the durable store. Call it
// once at start-up, before serving traffic.
func (c *Coordinator) Recover(ctx context.Context) error {
	products, err := c.catalog.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	stocked := 0
	for _, p := range products {
		if p.Kind.Stocked() {
			c.ledger.Load(p.ID, p.Stock)
			stocked++
		}
	}

	rentals, err := c.records.BlockingRentals(ctx, c.opts.PruneCompleted)
	if err != nil {
		return fmt.Errorf("load rentals: %w", err)
	}
	// every machine is restored, so one with no stored rentals is cleared
	byMachine := map[string][]calendar.Block{}
	for _, p := range products {
		if p.Kind == orders.KindRental {
			byMachine[p.ID] = nil
		}
	}
	for _, rt := range rentals {
		byMachine[rt.MachineID] = append(byMachine[rt.MachineID], calendar.Block{
			Range:    calendar.Range{Start: calendar.Day(rt.Start), End: calendar.Day(rt.End)},
			RentalID: rt.ID,
		})
	}
	for machineID, blocks := range byMachine {
		if err := c.calendar.Restore(ctx, machineID, blocks); err != nil {
			return err
		}
	}

	// nothing is in flight before serving, so every OPEN intent is orphaned
	n, err := c.records.ReclaimIntents(ctx, c.now().Add(24*time.Hour))
	if err != nil {
		return fmt.Errorf("reclaim intents: %w", err)
	}
	if n > 0 {
		c.inst.reclaimed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("trigger", "recover")))
	}
	c.log.Info("state recovered",
		zap.Int("products", stocked), zap.Int("machines", len(byMachine)),
		zap.Int("rentals", len(rentals)), zap.Int("reclaimed", n))
	return nil
}
