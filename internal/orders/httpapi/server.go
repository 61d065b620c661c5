package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/cart"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/order"
)

// OrderService is the slice of the order layer the handlers need.
type OrderService interface {
	PlaceOrder(ctx context.Context, userID string) ([]order.Order, error)
	List(ctx context.Context, userID string) ([]order.Order, error)
	Get(ctx context.Context, userID, orderID string) (*order.Order, error)
	AdminList(ctx context.Context) ([]order.Order, error)
	AdminUpdate(ctx context.Context, orderID string, req order.UpdateRequest) (*order.Order, error)
}

type CartService interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	Add(ctx context.Context, userID string, item cart.Item) error
	UpdateQuantity(ctx context.Context, userID, productID string, quantity int) error
	Remove(ctx context.Context, userID, productID string) error
}

// OrderCache fronts single-order reads; misses and failures fall
// through to the service.
type OrderCache interface {
	Get(ctx context.Context, orderID string) (*order.Order, bool)
	Set(ctx context.Context, o *order.Order)
	Invalidate(ctx context.Context, orderID string)
}

type Server struct {
	orders OrderService
	carts  CartService
	cache  OrderCache
	logger *slog.Logger
	mux    *http.ServeMux
}

func NewServer(orders OrderService, carts CartService, cache OrderCache, logger *slog.Logger) *Server {
	s := &Server{
		orders: orders,
		carts:  carts,
		cache:  cache,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /orders", s.placeOrder)
	s.mux.HandleFunc("GET /orders", s.listOrders)
	s.mux.HandleFunc("GET /orders/{orderID}", s.getOrder)
	s.mux.HandleFunc("GET /admin/orders", s.adminListOrders)
	s.mux.HandleFunc("PUT /admin/orders/{orderID}", s.adminUpdateOrder)
	s.mux.HandleFunc("GET /cart", s.getCart)
	s.mux.HandleFunc("POST /cart/items", s.addCartItem)
	s.mux.HandleFunc("PUT /cart/items/{productID}", s.updateCartItem)
	s.mux.HandleFunc("DELETE /cart/items/{productID}", s.removeCartItem)
}

// HandleFunc registers an extra route, used for the websocket endpoint
// that lives outside this package.
func (s *Server) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	orders, err := s.orders.PlaceOrder(r.Context(), userID)
	if err != nil {
		if errors.Is(err, order.ErrEmptyCart) {
			writeError(w, http.StatusBadRequest, "cart is empty")
			return
		}
		s.logger.Error("place order", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to place order")
		return
	}

	writeJSON(w, http.StatusCreated, orders)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	orders, err := s.orders.List(r.Context(), userID)
	if err != nil {
		s.logger.Error("list orders", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	orderID := r.PathValue("orderID")

	if o, ok := s.cache.Get(r.Context(), orderID); ok {
		if o.UserID != userID {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeJSON(w, http.StatusOK, o)
		return
	}

	o, err := s.orders.Get(r.Context(), userID, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		s.logger.Error("get order", "order_id", orderID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.cache.Set(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) adminListOrders(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}

	orders, err := s.orders.AdminList(r.Context())
	if err != nil {
		s.logger.Error("admin list orders", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) adminUpdateOrder(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}
	orderID := r.PathValue("orderID")

	var req order.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	o, err := s.orders.AdminUpdate(r.Context(), orderID, req)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, order.ErrInvalidTransition):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("admin update order", "order_id", orderID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.cache.Invalidate(r.Context(), orderID)
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	c, err := s.carts.Get(r.Context(), userID)
	if err != nil {
		s.logger.Error("get cart", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var item cart.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.carts.Add(r.Context(), userID, item); err != nil {
		if errors.Is(err, cart.ErrInvalidItem) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("add cart item", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.getCart(w, r)
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	productID := r.PathValue("productID")

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.carts.UpdateQuantity(r.Context(), userID, productID, req.Quantity); err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "cart item not found")
			return
		}
		s.logger.Error("update cart item", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.getCart(w, r)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	productID := r.PathValue("productID")

	if err := s.carts.Remove(r.Context(), userID, productID); err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "cart item not found")
			return
		}
		s.logger.Error("remove cart item", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.getCart(w, r)
}

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing X-User-ID header")
		return "", false
	}
	return userID, true
}

func isAdmin(r *http.Request) bool {
	return r.Header.Get("X-Admin") == "true"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
