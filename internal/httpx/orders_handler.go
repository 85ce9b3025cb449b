package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-rental-storefront/internal/cart"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"github.com/ariefcatur/go-rental-storefront/internal/redisx"
	"github.com/ariefcatur/go-rental-storefront/internal/reservation"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"net/http"
	"time"
)

// Checkouter is the slice of the coordinator the order endpoints use.
type Checkouter interface {
	CheckoutWithKey(ctx context.Context, cartID, userID, key string) (*orders.Order, error)
	GetOrder(ctx context.Context, id string) (*orders.Order, error)
	Restock(ctx context.Context, productID string, qty int) error
	StockLevel(ctx context.Context, productID string) (int, error)
}

type OrdersHandler struct {
	Engine  Checkouter
	Catalog reservation.Catalog
	Cart    *cart.Aggregator
	Redis   redis.UniversalClient
	Log     *zap.Logger
	// ClaimTTL bounds a pending idempotency claim. It should outlast one
	// checkout including retries; a crashed request frees the key after it.
	ClaimTTL time.Duration
}

type CheckoutReq struct {
	UserID string `json:"user_id"`
}

type CheckoutResp struct {
	Order      *orders.Order `json:"order"`
	Idempotent bool          `json:"idempotent"`
}

type cartItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type restockReq struct {
	Qty int `json:"qty"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	if h.ClaimTTL <= 0 {
		h.ClaimTTL = redisx.TTLIdemPending
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}/stock", h.stockLevel)
	r.Post("/products/{id}/restock", h.restock)

	r.Get("/carts/{cartID}/items", h.listItems)
	r.Post("/carts/{cartID}/items", h.addItem)
	r.Put("/carts/{cartID}/items/{productID}", h.updateItem)
	r.Delete("/carts/{cartID}/items/{productID}", h.removeItem)
	r.Delete("/carts/{cartID}", h.clearCart)
	r.Post("/carts/{cartID}/checkout", h.checkout)

	r.Get("/orders/{id}", h.getOrder)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) stockLevel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.Engine.StockLevel(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": id, "stock": n})
}

func (h *OrdersHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Engine.Restock(r.Context(), id, req.Qty); err != nil {
		writeError(w, h.Log, err)
		return
	}
	n, err := h.Engine.StockLevel(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": id, "stock": n})
}

func (h *OrdersHandler) listItems(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Cart.Lines(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

func (h *OrdersHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if err := h.Cart.AddItem(r.Context(), chi.URLParam(r, "cartID"), req.ProductID, req.Quantity); err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.listItems(w, r)
}

func (h *OrdersHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	err := h.Cart.UpdateItem(r.Context(), chi.URLParam(r, "cartID"), chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.listItems(w, r)
}

func (h *OrdersHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.RemoveItem(r.Context(), chi.URLParam(r, "cartID"), chi.URLParam(r, "productID")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.Clear(r.Context(), chi.URLParam(r, "cartID")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	cartID := chi.URLParam(r, "cartID")
	key := r.Header.Get("Idempotency-Key")
	ctx := r.Context()

	// Fast-path idempotency via Redis (DB tetap jadi kebenaran lewat external_id)
	var idemKey string
	if key != "" && h.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemCheckout, cartID, key)
		ok, existing, err := redisx.Claim(ctx, h.Redis, idemKey, redisx.Pending, h.ClaimTTL)
		switch {
		case err != nil:
			h.Log.Warn("idempotency claim failed", zap.String("cart_id", cartID), zap.Error(err))
			idemKey = ""
		case !ok && existing == redisx.Pending:
			writeError(w, h.Log, fmt.Errorf("%w: checkout with this key is in progress", reservation.ErrConflict))
			return
		case !ok && existing != "":
			h.replay(w, r, existing)
			return
		}
	}

	o, err := h.Engine.CheckoutWithKey(ctx, cartID, req.UserID, key)
	if err != nil {
		if idemKey != "" {
			// lepas klaim supaya client bisa coba lagi dengan key yang sama
			_ = h.Redis.Del(context.WithoutCancel(ctx), idemKey).Err()
		}
		writeError(w, h.Log, err)
		return
	}
	if idemKey != "" {
		// klaim jadi hasil, umurnya diperpanjang
		if err := h.Redis.Set(context.WithoutCancel(ctx), idemKey, o.ID, redisx.TTLIdempotency).Err(); err != nil {
			h.Log.Warn("idempotency result not stored", zap.String("cart_id", cartID), zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusCreated, CheckoutResp{Order: o})
}

func (h *OrdersHandler) replay(w http.ResponseWriter, r *http.Request, orderID string) {
	o, err := h.Engine.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckoutResp{Order: o, Idempotent: true})
}

func (h *OrdersHandler) cacheOrder(ctx context.Context, o *orders.Order) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderCache, o.ID), b, redisx.TTLOrderCache).Err()
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	if h.Redis != nil {
		s, err := h.Redis.Get(ctx, fmt.Sprintf(redisx.KeyOrderCache, orderID)).Result()
		if err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			h.Log.Warn("order cache read failed", zap.String("order_id", orderID), zap.Error(err))
		}
	}

	// 2) fallback ke record store
	o, err := h.Engine.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, o)
}
