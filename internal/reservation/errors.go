package reservation

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-rental-storefront/internal/calendar"
	"github.com/ariefcatur/go-rental-storefront/internal/cart"
	"github.com/ariefcatur/go-rental-storefront/internal/ledger"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"github.com/ariefcatur/go-rental-storefront/internal/pricing"
)

// Caller-facing errors. Everything the coordinator returns matches one of
// these with errors.Is, except infrastructure failures.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidRange      = fmt.Errorf("%w: invalid date range", ErrValidation)
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrBusy              = errors.New("resource busy, retry later")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicate         = errors.New("idempotency key already used")
	ErrUnknownOutcome    = errors.New("commit outcome unknown")
)

// StockError names the first product a checkout could not reserve.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

type TransitionError struct {
	RentalID string
	From     orders.Status
	To       orders.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("rental %s: cannot move from %s to %s", e.RentalID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// translate maps lower-level sentinels onto the caller-facing set.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var short *ledger.ShortageError
	switch {
	case errors.As(err, &short):
		return &StockError{ProductID: short.ProductID, Requested: short.Requested, Available: short.Available}
	case errors.Is(err, ledger.ErrBusy), errors.Is(err, calendar.ErrBusy):
		return fmt.Errorf("%w: %w", ErrBusy, err)
	case errors.Is(err, orders.ErrAlreadyExists):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case errors.Is(err, orders.ErrIntentClosed), errors.Is(err, orders.ErrStaleStatus):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, ledger.ErrUnknownProduct):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, calendar.ErrOverlap), errors.Is(err, orders.ErrRangeTaken):
		return fmt.Errorf("%w: %w", ErrSlotUnavailable, err)
	case errors.Is(err, calendar.ErrInvalidRange):
		return fmt.Errorf("%w: %w", ErrInvalidRange, err)
	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidID),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, pricing.ErrNoRate),
		errors.Is(err, pricing.ErrInvalidDays):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return err
}

// Code is a stable short name for err, used in metrics and API bodies.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownOutcome):
		return "internal"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "internal"
}

// Retryable reports whether the caller may retry the same request.
func Retryable(err error) bool {
	if errors.Is(err, ErrUnknownOutcome) {
		return false
	}
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrConflict)
}
