package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/cart"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/order"
)

type stubOrders struct {
	placed    []order.Order
	placeErr  error
	orders    map[string]*order.Order
	updateErr error
	updated   *order.UpdateRequest
}

func (s *stubOrders) PlaceOrder(_ context.Context, userID string) ([]order.Order, error) {
	if s.placeErr != nil {
		return nil, s.placeErr
	}
	return s.placed, nil
}

func (s *stubOrders) List(_ context.Context, userID string) ([]order.Order, error) {
	var result []order.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			result = append(result, *o)
		}
	}
	return result, nil
}

func (s *stubOrders) Get(_ context.Context, userID, orderID string) (*order.Order, error) {
	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *stubOrders) AdminList(context.Context) ([]order.Order, error) {
	var result []order.Order
	for _, o := range s.orders {
		result = append(result, *o)
	}
	return result, nil
}

func (s *stubOrders) AdminUpdate(_ context.Context, orderID string, req order.UpdateRequest) (*order.Order, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	s.updated = &req
	if req.Status != nil {
		o.Status = *req.Status
	}
	cp := *o
	return &cp, nil
}

type stubCarts struct {
	cart   *cart.Cart
	addErr error
}

func (s *stubCarts) Get(_ context.Context, userID string) (*cart.Cart, error) {
	if s.cart != nil {
		return s.cart, nil
	}
	return &cart.Cart{UserID: userID, Items: []cart.Item{}}, nil
}

func (s *stubCarts) Add(_ context.Context, userID string, item cart.Item) error {
	if s.addErr != nil {
		return s.addErr
	}
	if item.ProductID == "" || item.Price <= 0 || item.Quantity <= 0 {
		return cart.ErrInvalidItem
	}
	return nil
}

func (s *stubCarts) UpdateQuantity(_ context.Context, userID, productID string, quantity int) error {
	return nil
}

func (s *stubCarts) Remove(_ context.Context, userID, productID string) error {
	return cart.ErrItemNotFound
}

type stubCache struct {
	entries     map[string]*order.Order
	sets        int
	invalidated []string
}

func (s *stubCache) Get(_ context.Context, orderID string) (*order.Order, bool) {
	o, ok := s.entries[orderID]
	return o, ok
}

func (s *stubCache) Set(_ context.Context, o *order.Order) {
	s.sets++
}

func (s *stubCache) Invalidate(_ context.Context, orderID string) {
	s.invalidated = append(s.invalidated, orderID)
}

func newTestServer(orders *stubOrders, carts *stubCarts, cache *stubCache) *Server {
	if orders.orders == nil {
		orders.orders = make(map[string]*order.Order)
	}
	if cache.entries == nil {
		cache.entries = make(map[string]*order.Order)
	}
	return NewServer(orders, carts, cache, slog.New(slog.DiscardHandler))
}

func doRequest(srv http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func asUser(userID string) map[string]string {
	return map[string]string{"X-User-ID": userID}
}

func TestPlaceOrderReturnsCreatedOrders(t *testing.T) {
	orders := &stubOrders{placed: []order.Order{
		{ID: "o1", UserID: "u1", Status: order.StatusProcessing, Total: 300},
		{ID: "o2", UserID: "u1", Status: order.StatusProcessing, Total: 250},
	}}
	srv := newTestServer(orders, &stubCarts{}, &stubCache{})

	rec := doRequest(srv, http.MethodPost, "/orders", "", asUser("u1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created []order.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Len(t, created, 2)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	orders := &stubOrders{placeErr: order.ErrEmptyCart}
	srv := newTestServer(orders, &stubCarts{}, &stubCache{})

	rec := doRequest(srv, http.MethodPost, "/orders", "", asUser("u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrderRequiresIdentity(t *testing.T) {
	srv := newTestServer(&stubOrders{}, &stubCarts{}, &stubCache{})

	rec := doRequest(srv, http.MethodPost, "/orders", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrderMissServesAndFillsCache(t *testing.T) {
	orders := &stubOrders{orders: map[string]*order.Order{
		"o1": {ID: "o1", UserID: "u1", Status: order.StatusProcessing},
	}}
	cache := &stubCache{}
	srv := newTestServer(orders, &stubCarts{}, cache)

	rec := doRequest(srv, http.MethodGet, "/orders/o1", "", asUser("u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, cache.sets)
}

func TestGetOrderCacheHit(t *testing.T) {
	cache := &stubCache{entries: map[string]*order.Order{
		"o1": {ID: "o1", UserID: "u1", Status: order.StatusShipped},
	}}
	srv := newTestServer(&stubOrders{}, &stubCarts{}, cache)

	rec := doRequest(srv, http.MethodGet, "/orders/o1", "", asUser("u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var o order.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, order.StatusShipped, o.Status)
	assert.Equal(t, 0, cache.sets)
}

func TestGetOrderCacheHitHidesForeignOrder(t *testing.T) {
	cache := &stubCache{entries: map[string]*order.Order{
		"o1": {ID: "o1", UserID: "someoneElse"},
	}}
	srv := newTestServer(&stubOrders{}, &stubCarts{}, cache)

	rec := doRequest(srv, http.MethodGet, "/orders/o1", "", asUser("u1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderNotFound(t *testing.T) {
	srv := newTestServer(&stubOrders{}, &stubCarts{}, &stubCache{})

	rec := doRequest(srv, http.MethodGet, "/orders/ghost", "", asUser("u1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutesRequireAdminHeader(t *testing.T) {
	srv := newTestServer(&stubOrders{}, &stubCarts{}, &stubCache{})

	rec := doRequest(srv, http.MethodGet, "/admin/orders", "", asUser("u1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(srv, http.MethodPut, "/admin/orders/o1", `{"status":"SHIPPED"}`, asUser("u1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminUpdateOrder(t *testing.T) {
	orders := &stubOrders{orders: map[string]*order.Order{
		"o1": {ID: "o1", UserID: "u1", Status: order.StatusPaid},
	}}
	cache := &stubCache{}
	srv := newTestServer(orders, &stubCarts{}, cache)

	rec := doRequest(srv, http.MethodPut, "/admin/orders/o1", `{"status":"SHIPPED"}`,
		map[string]string{"X-Admin": "true"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, orders.updated)
	assert.Equal(t, order.StatusShipped, *orders.updated.Status)
	assert.Equal(t, []string{"o1"}, cache.invalidated)
}

func TestAdminUpdateInvalidTransition(t *testing.T) {
	orders := &stubOrders{updateErr: order.ErrInvalidTransition}
	srv := newTestServer(orders, &stubCarts{}, &stubCache{})

	rec := doRequest(srv, http.MethodPut, "/admin/orders/o1", `{"status":"COMPLETED"}`,
		map[string]string{"X-Admin": "true"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddCartItemValidation(t *testing.T) {
	srv := newTestServer(&stubOrders{}, &stubCarts{}, &stubCache{})

	rec := doRequest(srv, http.MethodPost, "/cart/items", `{"productId":"p1"}`, asUser("u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddCartItemReturnsCart(t *testing.T) {
	carts := &stubCarts{cart: &cart.Cart{
		UserID: "u1",
		Items:  []cart.Item{{ProductID: "p1", Name: "Widget", Price: 100, Quantity: 1}},
		Total:  100,
	}}
	srv := newTestServer(&stubOrders{}, carts, &stubCache{})

	rec := doRequest(srv, http.MethodPost, "/cart/items",
		`{"productId":"p1","name":"Widget","price":100,"quantity":1}`, asUser("u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var c cart.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, int64(100), c.Total)
}

func TestRemoveMissingCartItem(t *testing.T) {
	srv := newTestServer(&stubOrders{}, &stubCarts{}, &stubCache{})

	rec := doRequest(srv, http.MethodDelete, "/cart/items/ghost", "", asUser("u1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
