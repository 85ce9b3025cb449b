package httpx

import (
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-rental-storefront/internal/cart"
	"github.com/ariefcatur/go-rental-storefront/internal/logx"
	"github.com/ariefcatur/go-rental-storefront/internal/reservation"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"time"
)

func NewRouter(log *zap.Logger) *chi.Mux {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logx.RequestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`

	ProductID string `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation", Message: msg})
}

// status maps the coordinator's error taxonomy (and cart input errors) onto
// HTTP status codes.
func status(err error) (int, string) {
	switch {
	case errors.Is(err, cart.ErrItemNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrInvalidID):
		return http.StatusBadRequest, "validation"
	}
	code := reservation.Code(err)
	switch code {
	case "validation", "invalid_range":
		return http.StatusBadRequest, code
	case "not_found":
		return http.StatusNotFound, code
	case "insufficient_stock", "slot_unavailable", "conflict", "duplicate":
		return http.StatusConflict, code
	case "invalid_transition":
		return http.StatusUnprocessableEntity, code
	case "busy", "canceled":
		return http.StatusServiceUnavailable, code
	}
	return http.StatusInternalServerError, code
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code, name := status(err)
	body := errorBody{Error: name, Message: err.Error(), Retryable: reservation.Retryable(err)}

	var se *reservation.StockError
	if errors.As(err, &se) {
		body.ProductID, body.Requested, body.Available = se.ProductID, se.Requested, &se.Available
	}
	var te *reservation.TransitionError
	if errors.As(err, &te) {
		body.From, body.To = string(te.From), string(te.To)
	}
	if code == http.StatusServiceUnavailable {
		body.Retryable = true
		w.Header().Set("Retry-After", "1")
	}
	if code == http.StatusInternalServerError {
		// detail internal tidak dikirim ke client
		log.Error("request failed", zap.Error(err))
		body.Message = "internal error"
	}
	writeJSON(w, code, body)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}

func queryInt(r *http.Request, k string, def int) (int, error) {
	v := r.URL.Query().Get(k)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
