package reservation

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-rental-storefront/internal/calendar"
	"github.com/ariefcatur/go-rental-storefront/internal/cart"
	"github.com/ariefcatur/go-rental-storefront/internal/ledger"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"github.com/ariefcatur/go-rental-storefront/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"sync"
	"testing"
	"time"
)

var today = time.Date(2023, 12, 1, 9, 0, 0, 0, time.UTC)

type sentEvent struct {
	topic string
	env   orders.Envelope
}

type recorder struct {
	mu     sync.Mutex
	events []sentEvent
}

func (r *recorder) Emit(_ context.Context, topic string, _ []byte, env orders.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{topic: topic, env: env})
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.env.EventType)
	}
	return out
}

type fixture struct {
	c      *Coordinator
	repo   *orders.MemoryRepo
	cart   *cart.Aggregator
	ledger *ledger.Ledger
	cal    *calendar.Calendar
	events *recorder
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	ctx := context.Background()
	now := today
	repo := orders.NewMemoryRepo().WithClock(func() time.Time { return now })
	products := []orders.Product{
		{ID: "A", SKU: "A", Name: "Safety gloves", Kind: orders.KindSupply, Stock: 5, PriceCents: 1000, PromoPriceCents: 800, Available: true},
		{ID: "B", SKU: "B", Name: "Dust masks", Kind: orders.KindDisposable, Stock: 0, PriceCents: 300, Available: true},
		{ID: "C", SKU: "C", Name: "Generator", Kind: orders.KindSale, Stock: 2, PriceCents: 50000, Available: true},
		{ID: "X", SKU: "X", Name: "Discontinued", Kind: orders.KindSale, Stock: 9, PriceCents: 100, Available: false},
		{ID: "M1", SKU: "M1", Name: "Excavator", Kind: orders.KindRental, Available: true, Rates: pricing.Rates{DailyCents: 10000}},
		{ID: "M2", SKU: "M2", Name: "Skid steer", Kind: orders.KindRental, Available: true, Rates: pricing.Rates{DailyCents: 8000}},
	}
	for _, p := range products {
		require.NoError(t, repo.UpsertProduct(ctx, p))
	}

	opts := Options{
		LockWait:        200 * time.Millisecond,
		Retry:           RetryOptions{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Lease:           5 * time.Second,
		RejectPastStart: true,
		Clock:           func() time.Time { return now },
	}
	for _, m := range mutate {
		m(&opts)
	}
	f := &fixture{
		repo:   repo,
		cart:   cart.NewAggregator(cart.NewMemoryStore()),
		ledger: ledger.New(opts.LockWait),
		cal:    calendar.New(opts.LockWait),
		events: &recorder{},
	}
	f.c = New(Deps{
		Ledger:   f.ledger,
		Calendar: f.cal,
		Cart:     f.cart,
		Catalog:  repo,
		Records:  repo,
		Events:   f.events,
		Logger:   zaptest.NewLogger(t),
	}, opts)
	require.NoError(t, f.c.Recover(ctx))
	return f
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	n, err := f.c.StockLevel(context.Background(), id)
	require.NoError(t, err)
	return n
}

func day(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCheckoutCommitsOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cart.AddItem(ctx, "cart-1", "C", 1))
	require.NoError(t, f.cart.AddItem(ctx, "cart-1", "A", 2))
	require.NoError(t, f.cart.AddItem(ctx, "cart-1", "C", 1))

	o, err := f.c.Checkout(ctx, "cart-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, []orders.OrderItem{
		{ProductID: "C", Qty: 2, PriceCents: 50000},
		{ProductID: "A", Qty: 2, PriceCents: 800}, // promo price snapshot
	}, o.Items)
	assert.Equal(t, 101600, o.TotalCents)

	assert.Equal(t, 3, f.stock(t, "A"))
	assert.Equal(t, 0, f.stock(t, "C"))
	p, _ := f.repo.GetProduct(ctx, "A")
	assert.Equal(t, 3, p.Stock)

	items, _ := f.cart.ListItems(ctx, "cart-1")
	assert.Empty(t, items)

	stored, err := f.c.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Items, stored.Items)

	// later price change does not touch the order
	require.NoError(t, f.repo.UpsertProduct(ctx, orders.Product{ID: "A", SKU: "A", Kind: orders.KindSupply, PriceCents: 5000, Available: true}))
	stored, _ = f.c.GetOrder(ctx, o.ID)
	assert.Equal(t, 800, stored.Items[1].PriceCents)

	assert.Equal(t, []string{orders.EventOrderPlaced}, f.events.types())
}

func TestCheckoutInsufficientStockLeavesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.cart.AddItem(ctx, "cart-1", "C", 3))
	_, err := f.c.Checkout(ctx, "cart-1", "user-1")

	var se *StockError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, "C", se.ProductID)
	assert.Equal(t, 2, se.Available)
	assert.Equal(t, 2, f.stock(t, "C"))
	p, _ := f.repo.GetProduct(ctx, "C")
	assert.Equal(t, 2, p.Stock)

	items, _ := f.cart.ListItems(ctx, "cart-1")
	assert.Len(t, items, 1, "cart untouched on failure")
	assert.Empty(t, f.events.types())
}

func TestCheckoutRollsBackEarlierLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cart.AddItem(ctx, "cart-1", "A", 2))
	require.NoError(t, f.cart.AddItem(ctx, "cart-1", "B", 1))

	_, err := f.c.Checkout(ctx, "cart-1", "user-1")
	var se *StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "B", se.ProductID)

	assert.Equal(t, 5, f.stock(t, "A"))
	p, _ := f.repo.GetProduct(ctx, "A")
	assert.Equal(t, 5, p.Stock)
}

func TestCheckoutValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.c.Checkout(ctx, "empty", "user-1")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.cart.AddItem(ctx, "rental", "M1", 1))
	_, err = f.c.Checkout(ctx, "rental", "user-1")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.cart.AddItem(ctx, "gone", "X", 1))
	_, err = f.c.Checkout(ctx, "gone", "user-1")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.cart.AddItem(ctx, "ghost", "nope", 1))
	_, err = f.c.Checkout(ctx, "ghost", "user-1")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.c.Checkout(ctx, "cart", "")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "validation", Code(err))
	assert.False(t, Retryable(err))
}

func TestCheckoutDuplicateKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cart.AddItem(ctx, "cart-1", "A", 1))
	_, err := f.c.CheckoutWithKey(ctx, "cart-1", "user-1", "key-1")
	require.NoError(t, err)

	require.NoError(t, f.cart.AddItem(ctx, "cart-1", "A", 1))
	_, err = f.c.CheckoutWithKey(ctx, "cart-1", "user-1", "key-1")
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 4, f.stock(t, "A"))
}

func TestCheckoutBusyAfterRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options) { o.LockWait = 10 * time.Millisecond })
	require.NoError(t, f.cart.AddItem(ctx, "cart-1", "A", 1))

	held, err := f.ledger.Begin(ctx, []string{"A"})
	require.NoError(t, err)
	defer held.Rollback()

	_, err = f.c.Checkout(ctx, "cart-1", "user-1")
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, Retryable(err))

	// intents of failed attempts are closed
	n, err := f.repo.ReclaimIntents(ctx, today.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingRecords struct {
	*orders.MemoryRepo
	err error
}

func (f failingRecords) CommitOrder(context.Context, string, *orders.Order) error   { return f.err }
func (f failingRecords) CommitRental(context.Context, string, *orders.Rental) error { return f.err }

func TestCommitFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	boom := errors.New("disk full")
	f.c.records = failingRecords{MemoryRepo: f.repo, err: boom}

	require.NoError(t, f.cart.AddItem(ctx, "cart-1", "A", 2))
	_, err := f.c.Checkout(ctx, "cart-1", "user-1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, f.stock(t, "A"))
	items, _ := f.cart.ListItems(ctx, "cart-1")
	assert.Len(t, items, 1)

	_, err = f.c.BookRental(ctx, "M1", "user-1", day("2024-01-01"), day("2024-01-05"))
	assert.ErrorIs(t, err, boom)
	ok, err := f.c.CheckAvailability(ctx, "M1", day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err)
	assert.True(t, ok)
}

// landingRecords stores the commit and then reports a transport error, like a
// connection dropped before the commit reply arrived.
type landingRecords struct {
	*orders.MemoryRepo
	err error
}

func (l landingRecords) CommitOrder(ctx context.Context, intentID string, o *orders.Order) error {
	if err := l.MemoryRepo.CommitOrder(ctx, intentID, o); err != nil {
		return err
	}
	return l.err
}

func (l landingRecords) CommitRental(ctx context.Context, intentID string, rt *orders.Rental) error {
	if err := l.MemoryRepo.CommitRental(ctx, intentID, rt); err != nil {
		return err
	}
	return l.err
}

func TestCommitLandedDespiteError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.c.records = landingRecords{MemoryRepo: f.repo, err: errors.New("conn closed while reading commit response")}

	rt, err := f.c.BookRental(ctx, "M1", "user-1", day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err)
	stored, err := f.repo.GetRental(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, stored.Status)

	// calendar still holds the range
	ok, err := f.c.CheckAvailability(ctx, "M1", day("2024-01-03"), day("2024-01-04"))
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.c.BookRental(ctx, "M1", "user-2", day("2024-01-03"), day("2024-01-08"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	blocking, err := f.repo.BlockingRentals(ctx, true)
	require.NoError(t, err)
	assert.Len(t, blocking, 1)

	require.NoError(t, f.cart.AddItem(ctx, "cart-1", "A", 2))
	o, err := f.c.Checkout(ctx, "cart-1", "user-1")
	require.NoError(t, err)
	_, err = f.repo.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, f.stock(t, "A"))
	p, err := f.repo.GetProduct(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
	items, _ := f.cart.ListItems(ctx, "cart-1")
	assert.Empty(t, items)
}

// blindRecords fails the commit and cannot read the intent back either.
type blindRecords struct {
	*orders.MemoryRepo
	err error
}

func (b blindRecords) CommitOrder(context.Context, string, *orders.Order) error   { return b.err }
func (b blindRecords) CommitRental(context.Context, string, *orders.Rental) error { return b.err }
func (b blindRecords) GetIntent(context.Context, string) (*orders.Intent, error) {
	return nil, b.err
}

func TestCommitOutcomeUnknownFailsClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lost := errors.New("connection reset")
	f.c.records = blindRecords{MemoryRepo: f.repo, err: lost}

	_, err := f.c.BookRental(ctx, "M1", "user-1", day("2024-01-01"), day("2024-01-05"))
	assert.ErrorIs(t, err, ErrUnknownOutcome)
	assert.Equal(t, "internal", Code(err))
	// range stays blocked until Recover reloads the store
	ok, err := f.c.CheckAvailability(ctx, "M1", day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.cart.AddItem(ctx, "cart-1", "A", 2))
	_, err = f.c.Checkout(ctx, "cart-1", "user-1")
	assert.ErrorIs(t, err, ErrUnknownOutcome)
	assert.Equal(t, 3, f.stock(t, "A"))

	f.c.records = f.repo
	require.NoError(t, f.c.Recover(ctx))
	ok, err = f.c.CheckAvailability(ctx, "M1", day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, f.stock(t, "A"))
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options) {
		o.LockWait = 2 * time.Second
		o.Retry.Attempts = 10
	})

	const carts = 20
	for i := 0; i < carts; i++ {
		require.NoError(t, f.cart.AddItem(ctx, cartName(i), "A", 1))
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	placed, short := 0, 0
	for i := 0; i < carts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.c.Checkout(ctx, cartName(i), "user")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				placed++
			case errors.Is(err, ErrInsufficientStock):
				short++
			default:
				t.Errorf("unexpected: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, placed)
	assert.Equal(t, carts-5, short)
	assert.Equal(t, 0, f.stock(t, "A"))
}

func cartName(i int) string { return "cart-" + string(rune('a'+i)) }

func TestBookRentalHalfOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r1, err := f.c.BookRental(ctx, "M1", "u1", day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, r1.Status)
	assert.Equal(t, pricing.TierDaily, r1.Tier)
	assert.Equal(t, 40000, r1.QuoteCents)

	_, err = f.c.BookRental(ctx, "M1", "u2", day("2024-01-05"), day("2024-01-10"))
	require.NoError(t, err)

	_, err = f.c.BookRental(ctx, "M1", "u3", day("2024-01-04"), day("2024-01-08"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.False(t, Retryable(err))

	_, err = f.c.BookRental(ctx, "M2", "u3", day("2024-01-04"), day("2024-01-08"))
	require.NoError(t, err)
	assert.Equal(t, []string{orders.EventRentalBooked, orders.EventRentalBooked, orders.EventRentalBooked}, f.events.types())
}

func TestBookRentalValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.c.BookRental(ctx, "M1", "u1", day("2024-01-05"), day("2024-01-05"))
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.c.BookRental(ctx, "M1", "u1", day("2023-11-20"), day("2023-12-05"))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = f.c.BookRental(ctx, "A", "u1", day("2024-01-01"), day("2024-01-05"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.c.BookRental(ctx, "nope", "u1", day("2024-01-01"), day("2024-01-05"))
	assert.ErrorIs(t, err, ErrNotFound)

	// same-day start is allowed
	_, err = f.c.BookRental(ctx, "M1", "u1", today, today.AddDate(0, 0, 1))
	require.NoError(t, err)
}

func TestCancelFreesRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.c.BookRental(ctx, "M1", "u1", day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err)

	cancelled, err := f.c.CancelRental(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, cancelled.Status)

	_, err = f.c.BookRental(ctx, "M1", "u2", day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err)

	_, err = f.c.CancelRental(ctx, r.ID)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, orders.StatusCancelled, te.From)

	_, err = f.c.CancelRental(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.c.RequestRental(ctx, "M1", "u1", day("2024-02-01"), day("2024-02-08"))
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, r.Status)
	assert.Equal(t, pricing.TierWeekly, r.Tier)

	// pending already blocks
	_, err = f.c.BookRental(ctx, "M1", "u2", day("2024-02-03"), day("2024-02-04"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	_, err = f.c.ActivateRental(ctx, r.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.c.ConfirmRental(ctx, r.ID)
	require.NoError(t, err)
	_, err = f.c.ActivateRental(ctx, r.ID)
	require.NoError(t, err)

	_, err = f.c.CancelRental(ctx, r.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "active rentals cannot be cancelled")

	done, err := f.c.CompleteRental(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, done.Status)

	_, err = f.c.CancelRental(ctx, r.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// without pruning the completed range stays blocked
	ok, err := f.c.CheckAvailability(ctx, "M1", day("2024-02-01"), day("2024-02-08"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompletePrunesWhenEnabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options) { o.PruneCompleted = true })

	r, err := f.c.BookRental(ctx, "M1", "u1", day("2024-02-01"), day("2024-02-03"))
	require.NoError(t, err)
	_, err = f.c.ActivateRental(ctx, r.ID)
	require.NoError(t, err)

	ok, _ := f.c.CheckAvailability(ctx, "M1", day("2024-02-01"), day("2024-02-03"))
	assert.False(t, ok, "active keeps the block")

	_, err = f.c.CompleteRental(ctx, r.ID)
	require.NoError(t, err)
	ok, _ = f.c.CheckAvailability(ctx, "M1", day("2024-02-01"), day("2024-02-03"))
	assert.True(t, ok)
}

func TestConcurrentOverlappingBookings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options) {
		o.LockWait = 2 * time.Second
		o.Retry.Attempts = 10
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := day("2024-03-01").AddDate(0, 0, i%4)
			_, err := f.c.BookRental(ctx, "M1", "u", start, start.AddDate(0, 0, 5))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrSlotUnavailable) {
				t.Errorf("unexpected: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestCheckAvailabilityIsStable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.c.BookRental(ctx, "M1", "u1", day("2024-01-03"), day("2024-01-06"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ok, err := f.c.CheckAvailability(ctx, "M1", day("2024-01-01"), day("2024-01-04"))
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = f.c.CheckAvailability(ctx, "M1", day("2024-01-06"), day("2024-01-07"))
		require.NoError(t, err)
		assert.True(t, ok)
	}

	_, err = f.c.CheckAvailability(ctx, "M1", day("2024-01-07"), day("2024-01-06"))
	assert.ErrorIs(t, err, ErrInvalidRange)

	blocks, err := f.c.BlockedRanges(ctx, "M1", day("2024-01-01"), day("2024-04-01"))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, day("2024-01-03"), blocks[0].Start)
}

func TestAvailabilityRejectsNonMachines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.c.CheckAvailability(ctx, "ghost", day("2024-01-01"), day("2024-01-04"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.c.BlockedRanges(ctx, "ghost", day("2024-01-01"), day("2024-04-01"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.c.CheckAvailability(ctx, "A", day("2024-01-01"), day("2024-01-04"))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.c.BlockedRanges(ctx, "A", day("2024-01-01"), day("2024-04-01"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRestock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.c.Restock(ctx, "B", 4))
	assert.Equal(t, 4, f.stock(t, "B"))
	p, _ := f.repo.GetProduct(ctx, "B")
	assert.Equal(t, 4, p.Stock)

	assert.ErrorIs(t, f.c.Restock(ctx, "B", 0), ErrValidation)
	assert.ErrorIs(t, f.c.Restock(ctx, "M1", 1), ErrValidation)
	assert.ErrorIs(t, f.c.Restock(ctx, "nope", 1), ErrNotFound)
}

func TestRecoverRebuildsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cart.AddItem(ctx, "cart-1", "A", 2))
	_, err := f.c.Checkout(ctx, "cart-1", "u1")
	require.NoError(t, err)
	kept, err := f.c.BookRental(ctx, "M1", "u1", day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err)
	dropped, err := f.c.BookRental(ctx, "M1", "u1", day("2024-01-10"), day("2024-01-12"))
	require.NoError(t, err)
	_, err = f.c.CancelRental(ctx, dropped.ID)
	require.NoError(t, err)

	// orphaned intent from a "crashed" attempt
	require.NoError(t, f.repo.OpenIntent(ctx, &orders.Intent{ID: "orphan", Kind: orders.IntentCheckout, Ref: "cart-9"}))

	// fresh process over the same store
	restarted := New(Deps{
		Ledger:   ledger.New(time.Second),
		Calendar: calendar.New(time.Second),
		Cart:     f.cart,
		Catalog:  f.repo,
		Records:  f.repo,
	}, Options{Clock: func() time.Time { return today }})
	require.NoError(t, restarted.Recover(ctx))

	n, err := restarted.StockLevel(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ok, err := restarted.CheckAvailability(ctx, "M1", day("2024-01-02"), day("2024-01-03"))
	require.NoError(t, err)
	assert.False(t, ok, "rental %s restored", kept.ID)
	ok, err = restarted.CheckAvailability(ctx, "M1", day("2024-01-10"), day("2024-01-12"))
	require.NoError(t, err)
	assert.True(t, ok)

	in, err := f.repo.GetIntent(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, orders.IntentReclaimed, in.State)
}

func TestReclaimStaleIntents(t *testing.T) {
	ctx := context.Background()
	now := today
	repo := orders.NewMemoryRepo().WithClock(func() time.Time { return now })
	c := New(Deps{
		Ledger:   ledger.New(time.Second),
		Calendar: calendar.New(time.Second),
		Cart:     cart.NewAggregator(cart.NewMemoryStore()),
		Catalog:  repo,
		Records:  repo,
	}, Options{Lease: time.Minute, Clock: func() time.Time { return now }})

	require.NoError(t, repo.OpenIntent(ctx, &orders.Intent{ID: "stale"}))
	now = now.Add(30 * time.Second)
	require.NoError(t, repo.OpenIntent(ctx, &orders.Intent{ID: "fresh"}))
	now = now.Add(45 * time.Second)

	n, err := c.Reclaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	in, _ := repo.GetIntent(ctx, "fresh")
	assert.Equal(t, orders.IntentOpen, in.State)
	assert.ErrorIs(t, repo.CommitRental(ctx, "stale", &orders.Rental{ID: "late"}), orders.ErrIntentClosed)
}
