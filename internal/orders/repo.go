package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-rental-storefront/internal/pricing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

// Repo is the Postgres record store: catalog, orders, rentals and the
// intent journal.
type Repo struct{ DB *pgxpool.Pool }

const productCols = `id, sku, name, kind, stock, price_cents, promo_price_cents,
	daily_cents, weekly_cents, monthly_cents, available, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	var kind string
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &kind, &p.Stock, &p.PriceCents, &p.PromoPriceCents,
		&p.Rates.DailyCents, &p.Rates.WeeklyCents, &p.Rates.MonthlyCents, &p.Available, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Kind = ProductKind(kind)
	return &p, nil
}

func (r *Repo) GetProduct(ctx context.Context, id string) (*Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return p, err
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpsertProduct writes master data. Stock is only set on insert; afterwards
// it moves through CommitOrder / AdjustStock.
func (r *Repo) UpsertProduct(ctx context.Context, p Product) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(id, sku, name, kind, stock, price_cents, promo_price_cents,
		                     daily_cents, weekly_cents, monthly_cents, available)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			sku=EXCLUDED.sku, name=EXCLUDED.name, kind=EXCLUDED.kind,
			price_cents=EXCLUDED.price_cents, promo_price_cents=EXCLUDED.promo_price_cents,
			daily_cents=EXCLUDED.daily_cents, weekly_cents=EXCLUDED.weekly_cents,
			monthly_cents=EXCLUDED.monthly_cents, available=EXCLUDED.available, updated_at=now()`,
		p.ID, p.SKU, p.Name, string(p.Kind), p.Stock, p.PriceCents, p.PromoPriceCents,
		p.Rates.DailyCents, p.Rates.WeeklyCents, p.Rates.MonthlyCents, p.Available)
	return err
}

// AdjustStock applies delta to the stored count; it never goes below zero.
func (r *Repo) AdjustStock(ctx context.Context, productID string, delta int) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id=$1 AND stock + $2 >= 0`, productID, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		if _, err := r.GetProduct(ctx, productID); err != nil {
			return err
		}
		return fmt.Errorf("product %s: %w", productID, ErrStockMismatch)
	}
	return nil
}

// CommitOrder: satu transaksi -> intent OPEN->COMMITTED, insert order + items,
// kurangi stok durable. Gagal di langkah mana pun = tidak ada yg tersimpan.
func (r *Repo) CommitOrder(ctx context.Context, intentID string, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := closeIntent(ctx, tx, intentID, IntentCommitted); err != nil {
		return err
	}

	var ext *string
	if o.ExternalID != "" {
		ext = &o.ExternalID
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, external_id, user_id, cart_id, status, total_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`, o.ID, ext, o.UserID, o.CartID, o.Status, o.TotalCents).Scan(&o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return err
	}

	for i, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, position, product_id, qty, price_cents)
			VALUES ($1, $2, $3, $4, $5)`, o.ID, i, it.ProductID, it.Qty, it.PriceCents); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE id=$1 AND stock >= $2`, it.ProductID, it.Qty)
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			return fmt.Errorf("product %s: %w", it.ProductID, ErrStockMismatch)
		}
	}
	return tx.Commit(ctx)
}

// CommitRental inserts the rental and closes its intent in one transaction.
func (r *Repo) CommitRental(ctx context.Context, intentID string, rt *Rental) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := closeIntent(ctx, tx, intentID, IntentCommitted); err != nil {
		return err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO rentals(id, machine_id, user_id, start_date, end_date, status, tier, quote_cents)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		rt.ID, rt.MachineID, rt.UserID, rt.Start, rt.End, string(rt.Status), string(rt.Tier), rt.QuoteCents,
	).Scan(&rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
			return fmt.Errorf("rental %s: %w", rt.ID, ErrRangeTaken)
		}
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) GetOrder(ctx context.Context, id string) (*Order, error) {
	var o Order
	var ext *string
	err := r.DB.QueryRow(ctx, `
		SELECT id, external_id, user_id, cart_id, status, total_cents, created_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &ext, &o.UserID, &o.CartID, &o.Status, &o.TotalCents, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if ext != nil {
		o.ExternalID = *ext
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, qty, price_cents FROM order_items
		WHERE order_id=$1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ProductID, &it.Qty, &it.PriceCents); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

const rentalCols = `id, machine_id, user_id, start_date, end_date, status, tier, quote_cents, created_at, updated_at`

func scanRental(row pgx.Row) (*Rental, error) {
	var rt Rental
	var status, tier string
	err := row.Scan(&rt.ID, &rt.MachineID, &rt.UserID, &rt.Start, &rt.End, &status, &tier,
		&rt.QuoteCents, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rt.Status = Status(status)
	rt.Tier = pricing.Tier(tier)
	rt.Start, rt.End = rt.Start.UTC(), rt.End.UTC()
	return &rt, nil
}

func (r *Repo) GetRental(ctx context.Context, id string) (*Rental, error) {
	rt, err := scanRental(r.DB.QueryRow(ctx, `SELECT `+rentalCols+` FROM rentals WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("rental %s: %w", id, ErrNotFound)
	}
	return rt, err
}

// TransitionRental is a compare-and-swap on status: it only applies when the
// stored status still equals from.
func (r *Repo) TransitionRental(ctx context.Context, id string, from, to Status, at time.Time) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE rentals SET status=$3, updated_at=$4
		WHERE id=$1 AND status=$2`, id, string(from), string(to), at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		if _, err := r.GetRental(ctx, id); err != nil {
			return err
		}
		return ErrStaleStatus
	}
	return nil
}

// BlockingRentals returns rentals whose range occupies the calendar.
func (r *Repo) BlockingRentals(ctx context.Context, pruneCompleted bool) ([]Rental, error) {
	excluded := []string{string(StatusCancelled)}
	if pruneCompleted {
		excluded = append(excluded, string(StatusCompleted))
	}
	rows, err := r.DB.Query(ctx, `
		SELECT `+rentalCols+` FROM rentals
		WHERE status <> ALL($1) ORDER BY machine_id, start_date`, excluded)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rental
	for rows.Next() {
		rt, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rt)
	}
	return out, rows.Err()
}
