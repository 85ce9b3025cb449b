// Package lifecycle applies time-driven rental transitions published by the
// external scheduler (machine handed over, machine returned).
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	kafkax "github.com/ariefcatur/go-rental-storefront/internal/kafka"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"github.com/ariefcatur/go-rental-storefront/internal/redisx"
	"github.com/ariefcatur/go-rental-storefront/internal/reservation"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Transitioner is the part of the coordinator this consumer drives.
type Transitioner interface {
	ActivateRental(ctx context.Context, rentalID string) (*orders.Rental, error)
	CompleteRental(ctx context.Context, rentalID string) (*orders.Rental, error)
}

type Service struct {
	Rentals     Transitioner
	Redis       redis.UniversalClient
	ServiceName string
	Log         *zap.Logger
}

// HandleLifecycle: dipasang sebagai handler consumer. Return nil = offset boleh di-commit.
func (s *Service) HandleLifecycle(ctx context.Context, m kafkago.Message) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	// 1) decode envelope
	env, err := kafkax.DecodeEnvelope(m)
	if err != nil {
		// pesan rusak tidak akan pernah sukses; ack supaya tidak macet
		log.Error("drop undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	var apply func(context.Context, string) (*orders.Rental, error)
	switch env.EventType {
	case orders.EventRentalStarted:
		apply = s.Rentals.ActivateRental
	case orders.EventRentalReturned:
		apply = s.Rentals.CompleteRental
	default:
		return nil // ignore
	}

	// 2) dedup via Redis (pakai event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if seen, err := redisx.Exists(ctx, s.Redis, dkey); err == nil && seen {
		log.Debug("duplicate event", zap.String("event_id", env.EventID))
		return nil
	}

	// 3) decode payload
	p, err := kafkax.UnwrapPayload[orders.LifecyclePayload](env.Payload)
	if err != nil || p.RentalID == "" {
		log.Error("drop event without rental id", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	// 4) apply transition
	rt, err := apply(ctx, p.RentalID)
	switch {
	case err == nil:
		log.Info("rental lifecycle applied",
			zap.String("event_type", env.EventType), zap.String("rental_id", rt.ID), zap.String("status", string(rt.Status)))
	case errors.Is(err, reservation.ErrInvalidTransition), errors.Is(err, reservation.ErrNotFound):
		// redelivery setelah transisi sudah terjadi, atau rental tidak dikenal
		log.Warn("lifecycle event not applicable",
			zap.String("event_type", env.EventType), zap.String("rental_id", p.RentalID), zap.Error(err))
	default:
		// Busy/Conflict/infra: jangan commit, biar di-redeliver
		return err
	}

	// 5) tandai sudah diproses
	if err := s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err(); err != nil {
		log.Warn("dedup mark failed", zap.String("event_id", env.EventID), zap.Error(err))
	}
	return nil
}
