package orders

import (
	"encoding/json"
	"github.com/google/uuid"
	"time"
)

const (
	EventOrderPlaced     = "OrderPlaced"
	EventRentalBooked    = "RentalBooked"
	EventRentalConfirmed = "RentalConfirmed"
	EventRentalCancelled = "RentalCancelled"
	EventRentalActivated = "RentalActivated"
	EventRentalCompleted = "RentalCompleted"

	// inbound commands
	EventRentalStarted  = "RentalStarted"
	EventRentalReturned = "RentalReturned"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "storefront-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id / rental_id
	Payload       json.RawMessage `json:"payload"`                  // payload spesifik
}

// NewEnvelope wraps payload as a version 1 event.
func NewEnvelope(eventType, producer, correlationID, traceID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// ---- Payload tipe per event ----

type OrderPlacedPayload struct {
	OrderID    string      `json:"order_id"`
	ExternalID string      `json:"external_id,omitempty"`
	UserID     string      `json:"user_id"`
	CartID     string      `json:"cart_id"`
	Items      []OrderItem `json:"items"`
	TotalCents int         `json:"total_cents"`
}

// RentalPayload dipakai semua event rental keluar.
type RentalPayload struct {
	RentalID   string    `json:"rental_id"`
	MachineID  string    `json:"machine_id"`
	UserID     string    `json:"user_id"`
	Start      time.Time `json:"start_date"`
	End        time.Time `json:"end_date"`
	Status     Status    `json:"status"`
	QuoteCents int       `json:"quote_cents"`
}

func NewRentalPayload(r *Rental) RentalPayload {
	return RentalPayload{
		RentalID:   r.ID,
		MachineID:  r.MachineID,
		UserID:     r.UserID,
		Start:      r.Start,
		End:        r.End,
		Status:     r.Status,
		QuoteCents: r.QuoteCents,
	}
}

// LifecyclePayload: RentalStarted / RentalReturned.
type LifecyclePayload struct {
	RentalID string `json:"rental_id"`
}
