package reservation

import (
	"context"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"go.uber.org/zap"
)

// emit publishes after the commit and after every lock is released. Failure
// is logged only; the commit stands.
func (c *Coordinator) emit(ctx context.Context, topic, eventType, id string, payload any) {
	if c.events == nil {
		return
	}
	env, err := orders.NewEnvelope(eventType, c.opts.Service, id, traceID(ctx), payload)
	if err == nil {
		err = c.events.Emit(ctx, topic, orders.PartitionKey(id), env)
	}
	if err != nil {
		c.log.Warn("emit event failed", zap.String("event_type", eventType), zap.String("id", id), zap.Error(err))
	}
}
