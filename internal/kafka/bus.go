package kafka

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"go.uber.org/zap"
)

// Bus routes envelopes to one async producer per topic.
type Bus struct {
	producers map[string]*Producer
}

func NewBus(brokers []string, topics []string, buf int, log *zap.Logger) *Bus {
	b := &Bus{producers: make(map[string]*Producer, len(topics))}
	for _, t := range topics {
		b.producers[t] = NewProducer(brokers, t, buf, log)
	}
	return b
}

func (b *Bus) Start(ctx context.Context) {
	for _, p := range b.producers {
		p.Start(ctx)
	}
}

func (b *Bus) Emit(ctx context.Context, topic string, key []byte, env orders.Envelope) error {
	p, ok := b.producers[topic]
	if !ok {
		return fmt.Errorf("kafka: no producer for topic %s", topic)
	}
	value, headers, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return p.Publish(ctx, key, value, headers...)
}

// Close flushes every producer and waits for them to finish.
func (b *Bus) Close() {
	for _, p := range b.producers {
		p.Close()
	}
	for _, p := range b.producers {
		p.WaitClosed()
	}
}
