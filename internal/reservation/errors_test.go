package reservation

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-rental-storefront/internal/calendar"
	"github.com/ariefcatur/go-rental-storefront/internal/ledger"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		in   error
		want error
		code string
	}{
		{&ledger.ShortageError{ProductID: "A", Requested: 3, Available: 1}, ErrInsufficientStock, "insufficient_stock"},
		{fmt.Errorf("x: %w", ledger.ErrBusy), ErrBusy, "busy"},
		{calendar.ErrBusy, ErrBusy, "busy"},
		{orders.ErrIntentClosed, ErrConflict, "conflict"},
		{orders.ErrStaleStatus, ErrConflict, "conflict"},
		{orders.ErrNotFound, ErrNotFound, "not_found"},
		{orders.ErrAlreadyExists, ErrDuplicate, "duplicate"},
		{calendar.ErrOverlap, ErrSlotUnavailable, "slot_unavailable"},
		{fmt.Errorf("rental r: %w", orders.ErrRangeTaken), ErrSlotUnavailable, "slot_unavailable"},
		{calendar.ErrInvalidRange, ErrValidation, "invalid_range"},
		{ledger.ErrInvalidQuantity, ErrValidation, "validation"},
	}
	for _, c := range cases {
		got := translate(c.in)
		assert.ErrorIs(t, got, c.want, "%v", c.in)
		assert.Equal(t, c.code, Code(got), "%v", c.in)
	}

	plain := errors.New("db down")
	assert.Same(t, plain, translate(plain))
	assert.Equal(t, "internal", Code(plain))
	assert.Equal(t, "canceled", Code(context.Canceled))
	assert.Nil(t, translate(nil))

	lost := fmt.Errorf("%w: order o: %w", ErrUnknownOutcome, context.DeadlineExceeded)
	assert.Equal(t, "internal", Code(lost))
	assert.False(t, Retryable(lost))
}

func TestStockErrorShape(t *testing.T) {
	err := translate(&ledger.ShortageError{ProductID: "A", Requested: 3, Available: 1})
	var se *StockError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, "insufficient stock for product A: requested 3, available 1", err.Error())

	te := &TransitionError{RentalID: "r", From: orders.StatusCompleted, To: orders.StatusCancelled}
	assert.ErrorIs(t, te, ErrInvalidTransition)
	assert.False(t, Retryable(te))
}
