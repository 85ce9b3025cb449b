package orders

import (
	"github.com/ariefcatur/go-rental-storefront/internal/pricing"
	"time"
)

type ProductKind string

const (
	KindSale       ProductKind = "sale"
	KindRental     ProductKind = "rental"
	KindSupply     ProductKind = "supply"
	KindDisposable ProductKind = "disposable"
)

func (k ProductKind) Valid() bool {
	switch k {
	case KindSale, KindRental, KindSupply, KindDisposable:
		return true
	}
	return false
}

// Stocked: kind yg punya stok & bisa di-checkout lewat cart.
func (k ProductKind) Stocked() bool {
	return k == KindSale || k == KindSupply || k == KindDisposable
}

type Product struct {
	ID              string        `json:"id"`
	SKU             string        `json:"sku"`
	Name            string        `json:"name"`
	Kind            ProductKind   `json:"kind"`
	Stock           int           `json:"stock"`
	PriceCents      int           `json:"price_cents"`
	PromoPriceCents int           `json:"promo_price_cents,omitempty"` // 0 = tidak ada promo
	Rates           pricing.Rates `json:"rates"`                       // hanya utk kind rental
	Available       bool          `json:"available"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// SellingPriceCents is the promo price when set and lower than list price.
func (p Product) SellingPriceCents() int {
	if p.PromoPriceCents > 0 && p.PromoPriceCents < p.PriceCents {
		return p.PromoPriceCents
	}
	return p.PriceCents
}

const OrderPlaced = "PLACED"

type Order struct {
	ID         string      `json:"id"`
	ExternalID string      `json:"external_id,omitempty"` // idempotency key dari client
	UserID     string      `json:"user_id"`
	CartID     string      `json:"cart_id"`
	Status     string      `json:"status"`
	TotalCents int         `json:"total_cents"`
	Items      []OrderItem `json:"items"`
	CreatedAt  time.Time   `json:"created_at"`
}

// OrderItem snapshots the unit price at commit time.
type OrderItem struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

type Rental struct {
	ID         string       `json:"id"`
	MachineID  string       `json:"machine_id"`
	UserID     string       `json:"user_id"`
	Start      time.Time    `json:"start_date"`
	End        time.Time    `json:"end_date"` // exclusive
	Status     Status       `json:"status"`   // lihat status.go
	Tier       pricing.Tier `json:"tier"`
	QuoteCents int          `json:"quote_cents"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

type IntentKind string

const (
	IntentCheckout IntentKind = "checkout"
	IntentRental   IntentKind = "rental"
)

type IntentState string

const (
	IntentOpen      IntentState = "OPEN"
	IntentCommitted IntentState = "COMMITTED"
	IntentAborted   IntentState = "ABORTED"
	IntentReclaimed IntentState = "RECLAIMED"
)

// Intent is the journal row written before any in-memory reservation. Only
// an OPEN intent can commit, so a reclaimed attempt can never land late.
type Intent struct {
	ID        string
	Kind      IntentKind
	Ref       string // cart_id atau machine_id
	State     IntentState
	CreatedAt time.Time
	UpdatedAt time.Time
}
