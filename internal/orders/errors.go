package orders

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("order already exists")
	ErrIntentClosed  = errors.New("intent no longer open")
	ErrStaleStatus   = errors.New("rental status changed concurrently")
	ErrStockMismatch = errors.New("stored stock lower than reserved quantity")
	ErrRangeTaken    = errors.New("machine already rented for an overlapping range")
)
