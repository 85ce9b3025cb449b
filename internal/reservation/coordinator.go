// Package reservation is the only path that mutates stock and machine
// availability. Each entry point validates, reserves under locks, and commits
// the record and the in-memory mutation as one unit, or leaves nothing behind.
package reservation

import (
	"context"
	"github.com/ariefcatur/go-rental-storefront/internal/calendar"
	"github.com/ariefcatur/go-rental-storefront/internal/cart"
	"github.com/ariefcatur/go-rental-storefront/internal/ledger"
	"github.com/ariefcatur/go-rental-storefront/internal/locks"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"go.uber.org/zap"
	"time"
)

// Catalog is read-only product master data.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*orders.Product, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

// Records is the durable store. Commit methods must apply all their writes
// and close the intent atomically.
type Records interface {
	OpenIntent(ctx context.Context, in *orders.Intent) error
	AbortIntent(ctx context.Context, id string) error
	GetIntent(ctx context.Context, id string) (*orders.Intent, error)
	ReclaimIntents(ctx context.Context, before time.Time) (int, error)
	CommitOrder(ctx context.Context, intentID string, o *orders.Order) error
	CommitRental(ctx context.Context, intentID string, r *orders.Rental) error
	GetOrder(ctx context.Context, id string) (*orders.Order, error)
	GetRental(ctx context.Context, id string) (*orders.Rental, error)
	TransitionRental(ctx context.Context, id string, from, to orders.Status, at time.Time) error
	BlockingRentals(ctx context.Context, pruneCompleted bool) ([]orders.Rental, error)
	AdjustStock(ctx context.Context, productID string, delta int) error
}

// Emitter publishes post-commit events. It must not block on the broker.
type Emitter interface {
	Emit(ctx context.Context, topic string, key []byte, env orders.Envelope) error
}

type Deps struct {
	Ledger   *ledger.Ledger
	Calendar *calendar.Calendar
	Cart     *cart.Aggregator
	Catalog  Catalog
	Records  Records
	Events   Emitter // optional
	Logger   *zap.Logger
}

type RetryOptions struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

type Options struct {
	Service         string
	LockWait        time.Duration
	Retry           RetryOptions
	Lease           time.Duration // upper bound for one attempt, and intent age before reclaim
	PruneCompleted  bool
	RejectPastStart bool
	Clock           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Service == "" {
		o.Service = "storefront-api"
	}
	if o.LockWait <= 0 {
		o.LockWait = 2 * time.Second
	}
	if o.Retry.Attempts <= 0 {
		o.Retry.Attempts = 3
	}
	if o.Retry.BaseDelay <= 0 {
		o.Retry.BaseDelay = 25 * time.Millisecond
	}
	if o.Retry.MaxDelay < o.Retry.BaseDelay {
		o.Retry.MaxDelay = 10 * o.Retry.BaseDelay
	}
	if o.Lease <= 0 {
		o.Lease = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
	return o
}

type Coordinator struct {
	ledger   *ledger.Ledger
	calendar *calendar.Calendar
	cart     *cart.Aggregator
	catalog  Catalog
	records  Records
	events   Emitter
	log      *zap.Logger
	opts     Options

	carts *locks.Table // one checkout per cart at a time
	inst  instruments
}

func New(d Deps, o Options) *Coordinator {
	o = o.withDefaults()
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		ledger:   d.Ledger,
		calendar: d.Calendar,
		cart:     d.Cart,
		catalog:  d.Catalog,
		records:  d.Records,
		events:   d.Events,
		log:      log.Named("reservation"),
		opts:     o,
		carts:    locks.NewTable(o.LockWait),
		inst:     newInstruments(),
	}
}

func (c *Coordinator) now() time.Time { return c.opts.Clock() }

// abort closes an intent whose attempt failed. It runs detached from the
// attempt context, which may already be past its lease.
func (c *Coordinator) abort(ctx context.Context, intentID string) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.records.AbortIntent(actx, intentID); err != nil {
		// stays OPEN; the reclaim job closes it once the lease has passed
		c.log.Warn("abort intent failed", zap.String("intent_id", intentID), zap.Error(err))
	}
}

// settle pins down an intent whose commit call failed. An error from the
// store does not mean nothing was written: the transaction may have landed
// with its acknowledgement lost. Abort only moves an OPEN intent, so after
// it the stored state is final. landed reports a COMMITTED intent; a non-nil
// error means the outcome is still unknown.
func (c *Coordinator) settle(ctx context.Context, intentID string) (landed bool, err error) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.records.AbortIntent(actx, intentID); err != nil {
		return false, err
	}
	in, err := c.records.GetIntent(actx, intentID)
	if err != nil {
		return false, err
	}
	return in.State == orders.IntentCommitted, nil
}

func (c *Coordinator) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	o, err := c.records.GetOrder(ctx, id)
	return o, translate(err)
}

func (c *Coordinator) GetRental(ctx context.Context, id string) (*orders.Rental, error) {
	r, err := c.records.GetRental(ctx, id)
	return r, translate(err)
}
