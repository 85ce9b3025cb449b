package httpx

import (
	"context"
	"github.com/ariefcatur/go-rental-storefront/internal/calendar"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"time"
)

// calendarDays is the default window of the machine calendar view.
const calendarDays = 90

// Booker is the slice of the coordinator the rental endpoints use.
type Booker interface {
	BookRental(ctx context.Context, machineID, userID string, start, end time.Time) (*orders.Rental, error)
	RequestRental(ctx context.Context, machineID, userID string, start, end time.Time) (*orders.Rental, error)
	GetRental(ctx context.Context, id string) (*orders.Rental, error)
	CancelRental(ctx context.Context, rentalID string) (*orders.Rental, error)
	ConfirmRental(ctx context.Context, rentalID string) (*orders.Rental, error)
	CheckAvailability(ctx context.Context, machineID string, start, end time.Time) (bool, error)
	BlockedRanges(ctx context.Context, machineID string, from, to time.Time) ([]calendar.Block, error)
}

type RentalsHandler struct {
	Engine Booker
	Log    *zap.Logger
	Clock  func() time.Time
}

// BookRentalReq: tanggal format YYYY-MM-DD, end_date eksklusif.
type BookRentalReq struct {
	MachineID string `json:"machine_id"`
	UserID    string `json:"user_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Pending   bool   `json:"pending"` // true = request, perlu dikonfirmasi
}

type blockResp struct {
	Start    string `json:"start_date"`
	End      string `json:"end_date"`
	RentalID string `json:"rental_id"`
}

func (h *RentalsHandler) Register(r *chi.Mux) {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	if h.Clock == nil {
		h.Clock = time.Now
	}
	r.Post("/rentals", h.book)
	r.Get("/rentals/{id}", h.getRental)
	r.Post("/rentals/{id}/cancel", h.cancel)
	r.Post("/rentals/{id}/confirm", h.confirm)
	r.Get("/machines/{id}/availability", h.availability)
	r.Get("/machines/{id}/calendar", h.calendar)
}

func (h *RentalsHandler) book(w http.ResponseWriter, r *http.Request) {
	var req BookRentalReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	start, err1 := parseDate(req.StartDate)
	end, err2 := parseDate(req.EndDate)
	if err1 != nil || err2 != nil {
		badRequest(w, "start_date and end_date must be YYYY-MM-DD")
		return
	}

	book := h.Engine.BookRental
	if req.Pending {
		book = h.Engine.RequestRental
	}
	rt, err := book(r.Context(), req.MachineID, req.UserID, start, end)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}

func (h *RentalsHandler) getRental(w http.ResponseWriter, r *http.Request) {
	rt, err := h.Engine.GetRental(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (h *RentalsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.CancelRental)
}

func (h *RentalsHandler) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.ConfirmRental)
}

func (h *RentalsHandler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, string) (*orders.Rental, error)) {
	rt, err := apply(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (h *RentalsHandler) availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err1 := parseDate(q.Get("start"))
	end, err2 := parseDate(q.Get("end"))
	if err1 != nil || err2 != nil {
		badRequest(w, "start and end must be YYYY-MM-DD")
		return
	}
	machineID := chi.URLParam(r, "id")
	ok, err := h.Engine.CheckAvailability(r.Context(), machineID, start, end)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"machine_id": machineID,
		"start_date": start.Format(time.DateOnly),
		"end_date":   end.Format(time.DateOnly),
		"available":  ok,
	})
}

// calendar lists blocked ranges from ?from (default today) for ?days days.
func (h *RentalsHandler) calendar(w http.ResponseWriter, r *http.Request) {
	from := calendar.Day(h.Clock())
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			badRequest(w, "from must be YYYY-MM-DD")
			return
		}
		from = d
	}
	days, err := queryInt(r, "days", calendarDays)
	if err != nil || days < 1 {
		badRequest(w, "days must be a positive integer")
		return
	}

	machineID := chi.URLParam(r, "id")
	blocks, err := h.Engine.BlockedRanges(r.Context(), machineID, from, from.AddDate(0, 0, days))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	out := make([]blockResp, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, blockResp{
			Start:    b.Start.Format(time.DateOnly),
			End:      b.End.Format(time.DateOnly),
			RentalID: b.RentalID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"machine_id": machineID, "blocked": out})
}
