package redisx

import "time"

const (
	// Idempotency checkout: idem:checkout:{cart_id}:{idempotency_key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Cache order snapshot: order:{order_id} -> json order
	KeyOrderCache = "order:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Cart lines: hash cart:{cart_id}:items (product_id -> qty), list cart:{cart_id}:order
	KeyCartItems = "cart:%s:items"
	KeyCartOrder = "cart:%s:order"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLIdemPending = 30 * time.Second // klaim checkout yang belum selesai
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLCart        = 7 * 24 * time.Hour
)

// Pending marks a claimed idempotency key whose result is not written yet.
const Pending = "pending"
