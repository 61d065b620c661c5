package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	gw "github.com/gorilla/websocket"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/order"
)

type Conn = gw.Conn

var upgrader = gw.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// OrderGetter resolves an order for its owner; the handler uses it to
// reject subscriptions to orders the caller cannot see.
type OrderGetter interface {
	Get(ctx context.Context, userID, orderID string) (*order.Order, error)
}

type Handler struct {
	hub    *Hub
	orders OrderGetter
	logger *slog.Logger
}

func NewHandler(hub *Hub, orders OrderGetter, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, orders: orders, logger: logger}
}

// ServeWS upgrades the request and subscribes it to one order's status
// stream. The current status is pushed immediately so the client never
// starts from a blank state.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	orderID := r.PathValue("orderID")
	userID := r.Header.Get("X-User-ID")
	if orderID == "" || userID == "" {
		_ = conn.Close()
		return
	}

	o, err := h.orders.Get(r.Context(), userID, orderID)
	if err != nil {
		_ = conn.Close()
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		orderID: orderID,
	}

	client.hub.register <- client
	go client.writePump()
	go client.readPump()

	upd := OrderUpdate{OrderID: orderID, Status: string(o.Status)}
	if b, err := json.Marshal(upd); err == nil {
		select {
		case client.send <- b:
		case <-time.After(1 * time.Second):
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(gw.TextMessage, msg); err != nil {
			return
		}
	}
}
