package reservation

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-rental-storefront/internal/calendar"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"github.com/ariefcatur/go-rental-storefront/internal/pricing"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"time"
)

// BookRental blocks [start, end) on the machine and stores a confirmed rental.
func (c *Coordinator) BookRental(ctx context.Context, machineID, userID string, start, end time.Time) (*orders.Rental, error) {
	return c.book(ctx, "book_rental", machineID, userID, start, end, orders.StatusConfirmed)
}

// RequestRental is BookRental for a rental that still needs confirmation.
// The range is blocked right away.
func (c *Coordinator) RequestRental(ctx context.Context, machineID, userID string, start, end time.Time) (*orders.Rental, error) {
	return c.book(ctx, "request_rental", machineID, userID, start, end, orders.StatusPending)
}

func (c *Coordinator) rentalRange(start, end time.Time) (calendar.Range, error) {
	r, err := calendar.NewRange(start, end)
	if err != nil {
		return r, translate(err)
	}
	if c.opts.RejectPastStart && r.Start.Before(calendar.Day(c.now())) {
		return r, fmt.Errorf("%w: start %s is in the past", ErrInvalidRange, r.Start.Format(time.DateOnly))
	}
	return r, nil
}

func (c *Coordinator) machine(ctx context.Context, machineID string) (*orders.Product, error) {
	p, err := c.catalog.GetProduct(ctx, machineID)
	if err != nil {
		return nil, translate(err)
	}
	if p.Kind != orders.KindRental {
		return nil, fmt.Errorf("%w: product %s is not a rental machine", ErrValidation, machineID)
	}
	return p, nil
}

func (c *Coordinator) book(ctx context.Context, op, machineID, userID string, start, end time.Time, status orders.Status) (rt *orders.Rental, err error) {
	ctx, span := c.inst.start(ctx, op, attribute.String("machine.id", machineID))
	defer func() { c.inst.finish(ctx, span, op, err) }()

	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrValidation)
	}
	r, err := c.rentalRange(start, end)
	if err != nil {
		return nil, err
	}
	m, err := c.machine(ctx, machineID)
	if err != nil {
		return nil, err
	}
	if !m.Available {
		return nil, fmt.Errorf("%w: machine %s is not available", ErrValidation, machineID)
	}
	quote, err := pricing.QuoteRental(m.Rates, r.Days())
	if err != nil {
		return nil, translate(err)
	}

	rt, err = retry(ctx, c, op, func(ctx context.Context) (*orders.Rental, error) {
		return c.bookOnce(ctx, machineID, userID, r, quote, status)
	})
	if err != nil {
		c.log.Info("rental not booked", zap.String("machine_id", machineID), zap.Stringer("range", r), zap.String("code", Code(err)))
		return nil, err
	}
	c.log.Info("rental booked",
		zap.String("rental_id", rt.ID), zap.String("machine_id", machineID),
		zap.Stringer("range", r), zap.String("status", string(rt.Status)))
	c.emit(ctx, orders.TopicRentalBooked, orders.EventRentalBooked, rt.ID, orders.NewRentalPayload(rt))
	return rt, nil
}

func (c *Coordinator) bookOnce(ctx context.Context, machineID, userID string, r calendar.Range, q pricing.Quote, status orders.Status) (*orders.Rental, error) {
	in := &orders.Intent{ID: uuid.NewString(), Kind: orders.IntentRental, Ref: machineID}
	if err := c.records.OpenIntent(ctx, in); err != nil {
		return nil, fmt.Errorf("open intent: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			c.abort(ctx, in.ID)
		}
	}()

	sess, err := c.calendar.Lock(ctx, machineID)
	if err != nil {
		return nil, translate(err)
	}
	defer sess.Close()

	free, err := sess.Available(r)
	if err != nil {
		return nil, translate(err)
	}
	if !free {
		return nil, fmt.Errorf("%w: machine %s %s", ErrSlotUnavailable, machineID, r)
	}

	rt := &orders.Rental{
		ID:         uuid.NewString(),
		MachineID:  machineID,
		UserID:     userID,
		Start:      r.Start,
		End:        r.End,
		Status:     status,
		Tier:       q.Tier,
		QuoteCents: q.TotalCents,
	}
	if err := sess.Block(r, rt.ID); err != nil {
		return nil, translate(err)
	}
	if err := c.records.CommitRental(ctx, in.ID, rt); err != nil {
		closed = true
		landed, serr := c.settle(ctx, in.ID)
		if serr != nil {
			// block stays: a stored rental may hold it. Recover rebuilds the calendar.
			c.log.Error("rental commit outcome unknown",
				zap.String("rental_id", rt.ID), zap.String("intent_id", in.ID), zap.Error(err), zap.NamedError("settle", serr))
			return nil, backoff.Permanent(fmt.Errorf("%w: rental %s: %w", ErrUnknownOutcome, rt.ID, err))
		}
		if !landed {
			if uerr := sess.Unblock(r); uerr != nil {
				c.log.Error("unblock after failed commit", zap.String("machine_id", machineID), zap.Error(uerr))
			}
			return nil, fmt.Errorf("commit rental: %w", translate(err))
		}
		c.log.Warn("rental commit reported an error but was stored", zap.String("rental_id", rt.ID), zap.Error(err))
		return c.stored(ctx, rt), nil
	}
	closed = true
	return rt, nil
}

// stored re-reads a rental whose commit landed despite an error, falling back
// to the in-memory copy.
func (c *Coordinator) stored(ctx context.Context, rt *orders.Rental) *orders.Rental {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if got, err := c.records.GetRental(rctx, rt.ID); err == nil {
		return got
	}
	return rt
}

// CancelRental flips a pending or confirmed rental to cancelled and frees its
// range under the same machine lock.
func (c *Coordinator) CancelRental(ctx context.Context, rentalID string) (*orders.Rental, error) {
	return c.transition(ctx, "cancel_rental", rentalID, orders.StatusCancelled)
}

func (c *Coordinator) ConfirmRental(ctx context.Context, rentalID string) (*orders.Rental, error) {
	return c.transition(ctx, "confirm_rental", rentalID, orders.StatusConfirmed)
}

// ActivateRental and CompleteRental are driven by the external scheduler.
func (c *Coordinator) ActivateRental(ctx context.Context, rentalID string) (*orders.Rental, error) {
	return c.transition(ctx, "activate_rental", rentalID, orders.StatusActive)
}

func (c *Coordinator) CompleteRental(ctx context.Context, rentalID string) (*orders.Rental, error) {
	return c.transition(ctx, "complete_rental", rentalID, orders.StatusCompleted)
}

var transitionEvents = map[orders.Status][2]string{
	orders.StatusCancelled: {orders.TopicRentalCancelled, orders.EventRentalCancelled},
	orders.StatusActive:    {orders.TopicRentalActivated, orders.EventRentalActivated},
	orders.StatusCompleted: {orders.TopicRentalCompleted, orders.EventRentalCompleted},
	orders.StatusConfirmed: {orders.TopicRentalConfirmed, orders.EventRentalConfirmed},
}

func (c *Coordinator) transition(ctx context.Context, op, rentalID string, to orders.Status) (rt *orders.Rental, err error) {
	ctx, span := c.inst.start(ctx, op, attribute.String("rental.id", rentalID))
	defer func() { c.inst.finish(ctx, span, op, err) }()

	var from orders.Status
	rt, err = retry(ctx, c, op, func(ctx context.Context) (*orders.Rental, error) {
		cur, err := c.records.GetRental(ctx, rentalID)
		if err != nil {
			return nil, translate(err)
		}
		from = cur.Status
		return c.transitionOnce(ctx, cur, to)
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("rental status changed",
		zap.String("rental_id", rt.ID), zap.String("from", string(from)), zap.String("to", string(to)))
	if ev, ok := transitionEvents[to]; ok {
		c.emit(ctx, ev[0], ev[1], rt.ID, orders.NewRentalPayload(rt))
	}
	return rt, nil
}

func (c *Coordinator) transitionOnce(ctx context.Context, rt *orders.Rental, to orders.Status) (*orders.Rental, error) {
	if !orders.CanTransition(rt.Status, to) {
		return nil, &TransitionError{RentalID: rt.ID, From: rt.Status, To: to}
	}
	sess, err := c.calendar.Lock(ctx, rt.MachineID)
	if err != nil {
		return nil, translate(err)
	}
	defer sess.Close()

	at := c.now()
	if err := c.records.TransitionRental(ctx, rt.ID, rt.Status, to, at); err != nil {
		// stale status: another caller moved it first, re-read on retry
		return nil, translate(err)
	}
	out := *rt
	out.Status = to
	out.UpdatedAt = at

	unblock := to == orders.StatusCancelled || (to == orders.StatusCompleted && c.opts.PruneCompleted)
	if unblock {
		r := calendar.Range{Start: calendar.Day(rt.Start), End: calendar.Day(rt.End)}
		if err := sess.Unblock(r); err != nil {
			if errors.Is(err, calendar.ErrNotBlocked) {
				c.log.Warn("rental range was not blocked", zap.String("rental_id", rt.ID), zap.Stringer("range", r))
			} else {
				c.log.Error("unblock rental range", zap.String("rental_id", rt.ID), zap.Error(err))
			}
		}
	}
	return &out, nil
}

// CheckAvailability reports whether [start, end) is free on the machine.
// Read-only; repeated calls with no booking in between agree.
func (c *Coordinator) CheckAvailability(ctx context.Context, machineID string, start, end time.Time) (bool, error) {
	r, err := calendar.NewRange(start, end)
	if err != nil {
		return false, translate(err)
	}
	if _, err := c.machine(ctx, machineID); err != nil {
		return false, err
	}
	return retry(ctx, c, "check_availability", func(ctx context.Context) (bool, error) {
		ok, err := c.calendar.CheckAvailable(ctx, machineID, r)
		return ok, translate(err)
	})
}

// BlockedRanges lists the machine's blocked ranges that intersect [from, to).
func (c *Coordinator) BlockedRanges(ctx context.Context, machineID string, from, to time.Time) ([]calendar.Block, error) {
	window, err := calendar.NewRange(from, to)
	if err != nil {
		return nil, translate(err)
	}
	if _, err := c.machine(ctx, machineID); err != nil {
		return nil, err
	}
	return retry(ctx, c, "blocked_ranges", func(ctx context.Context) ([]calendar.Block, error) {
		bs, err := c.calendar.Blocked(ctx, machineID, window)
		return bs, translate(err)
	})
}
