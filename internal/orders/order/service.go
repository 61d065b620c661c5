package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/contracts"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{pool: pool, logger: logger}
}

// PlaceOrder turns the caller's cart into one order per settlement
// wallet. Orders, items, their OrderCreated outbox rows and the cart
// wipe all commit in one transaction, so an order can never exist
// without its reservation event and a failure leaves the cart intact.
func (s *Service) PlaceOrder(ctx context.Context, userID string) ([]Order, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT product_id, name, price, quantity, wallet_address
		FROM cart_items
		WHERE user_id = $1
		ORDER BY added_at
		FOR UPDATE`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	var lines []cartLine
	for rows.Next() {
		var line cartLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Price, &line.Quantity, &line.WalletAddress); err != nil {
			rows.Close()
			return nil, err
		}
		lines = append(lines, line)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	now := time.Now().UTC()
	var orders []Order

	for _, group := range partitionBySettlement(lines) {
		o := Order{
			ID:            uuid.NewString(),
			UserID:        userID,
			Status:        StatusProcessing,
			Total:         group.Total,
			WalletAddress: group.WalletAddress,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO orders (id, user_id, status, total, shipping_fee, wallet_address, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 0, $5, $6, $6)`,
			o.ID, o.UserID, o.Status, o.Total, o.WalletAddress, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert order: %w", err)
		}

		items := make([]contracts.Item, 0, len(group.Lines))
		for _, line := range group.Lines {
			_, err = tx.Exec(ctx, `
				INSERT INTO order_items (order_id, product_id, name, price, quantity)
				VALUES ($1, $2, $3, $4, $5)`,
				o.ID, line.ProductID, line.Name, line.Price, line.Quantity,
			)
			if err != nil {
				return nil, fmt.Errorf("insert order item: %w", err)
			}

			o.Items = append(o.Items, OrderItem{
				ProductID: line.ProductID,
				Name:      line.Name,
				Price:     line.Price,
				Quantity:  line.Quantity,
			})
			items = append(items, contracts.Item{ProductID: line.ProductID, Quantity: line.Quantity})
		}

		event, err := contracts.NewEnvelope(contracts.EventOrderCreated, contracts.OrderCreatedData{
			OrderID: o.ID,
			UserID:  userID,
			Items:   items,
		})
		if err != nil {
			return nil, err
		}
		if err := enqueue(ctx, tx, event); err != nil {
			return nil, err
		}

		orders = append(orders, o)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return orders, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Order, error) {
	return s.queryOrders(ctx, `WHERE user_id = $1`, userID)
}

func (s *Service) AdminList(ctx context.Context) ([]Order, error) {
	return s.queryOrders(ctx, ``)
}

func (s *Service) queryOrders(ctx context.Context, where string, args ...any) ([]Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, status, total, shipping_fee, wallet_address, created_at, updated_at
		FROM orders `+where+`
		ORDER BY created_at DESC`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	var ids []string
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.ShippingFee, &o.WalletAddress, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orders) == 0 {
		return orders, nil
	}

	itemsByOrder, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = itemsByOrder[orders[i].ID]
	}
	return orders, nil
}

func (s *Service) loadItems(ctx context.Context, orderIDs []string) (map[string][]OrderItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, product_id, name, price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY product_id`, orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]OrderItem)
	for rows.Next() {
		var orderID string
		var item OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, err
		}
		result[orderID] = append(result[orderID], item)
	}
	return result, rows.Err()
}

func (s *Service) Get(ctx context.Context, userID, orderID string) (*Order, error) {
	var o Order
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, status, total, shipping_fee, wallet_address, created_at, updated_at
		FROM orders
		WHERE id = $1 AND user_id = $2`,
		orderID, userID,
	).Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.ShippingFee, &o.WalletAddress, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	itemsByOrder, err := s.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = itemsByOrder[o.ID]
	return &o, nil
}

// UpdateRequest carries the operator-editable fields. Nil pointers mean
// "leave unchanged".
type UpdateRequest struct {
	Status      *Status `json:"status"`
	ShippingFee *int64  `json:"shippingFee"`
	Total       *int64  `json:"total"`
}

// AdminUpdate applies an operator change to an order. A status change is
// validated against the fulfillment state machine and emits either
// OrderCanceled (with the item list, so the ledger can release the
// reservation) or OrderStatusUpdated through the outbox.
func (s *Service) AdminUpdate(ctx context.Context, orderID string, req UpdateRequest) (*Order, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var o Order
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, status, total, shipping_fee, wallet_address, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE`, orderID,
	).Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.ShippingFee, &o.WalletAddress, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("load order: %w", err)
	}

	if req.Total != nil {
		o.Total = *req.Total
	}
	if req.ShippingFee != nil {
		o.ShippingFee = *req.ShippingFee
	}

	if req.Status != nil && *req.Status != o.Status {
		if !CanTransition(o.Status, *req.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, *req.Status)
		}
		o.Status = *req.Status

		var event contracts.Envelope
		if o.Status == StatusCanceled {
			items, err := s.loadItemsTx(ctx, tx, o.ID)
			if err != nil {
				return nil, err
			}
			event, err = contracts.NewEnvelope(contracts.EventOrderCanceled, contracts.OrderCanceledData{
				OrderID: o.ID,
				UserID:  o.UserID,
				Items:   items,
			})
			if err != nil {
				return nil, err
			}
		} else {
			event, err = contracts.NewEnvelope(contracts.EventOrderStatusUpdated, contracts.OrderStatusUpdatedData{
				OrderID:   o.ID,
				NewStatus: string(o.Status),
			})
			if err != nil {
				return nil, err
			}
		}
		if err := enqueue(ctx, tx, event); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, total = $3, shipping_fee = $4, updated_at = NOW()
		WHERE id = $1`,
		o.ID, o.Status, o.Total, o.ShippingFee,
	)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	itemsByOrder, err := s.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = itemsByOrder[o.ID]
	return &o, nil
}

func (s *Service) loadItemsTx(ctx context.Context, tx pgx.Tx, orderID string) ([]contracts.Item, error) {
	rows, err := tx.Query(ctx, `
		SELECT product_id, quantity
		FROM order_items
		WHERE order_id = $1`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []contracts.Item
	for rows.Next() {
		var item contracts.Item
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkPaid applies an OrderPaid event. The inbox claim in the same
// transaction makes redelivered events no-ops. Payment settles
// out-of-band, so a paid order may legitimately still sit in an early
// status; any pre-PAID status jumps straight to PAID. The returned
// status is empty when nothing changed.
func (s *Service) MarkPaid(ctx context.Context, eventID, orderID string) (Status, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO order_inbox (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, contracts.EventOrderPaid,
	)
	if err != nil {
		return "", fmt.Errorf("insert inbox: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already processed.
		return "", nil
	}

	var current Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOrderNotFound
		}
		return "", fmt.Errorf("load order: %w", err)
	}

	switch {
	case current == StatusCanceled:
		// The reservation was already released; the money needs a human.
		s.logger.Error("payment received for canceled order, manual reconciliation required",
			"order_id", orderID, "event_id", eventID)
		return "", tx.Commit(ctx)
	case rank(current) >= rank(StatusPaid):
		return "", tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1`,
		orderID, StatusPaid,
	)
	if err != nil {
		return "", fmt.Errorf("update order status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return StatusPaid, nil
}

func enqueue(ctx context.Context, tx pgx.Tx, event contracts.Envelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO order_outbox (event_id, event_type, payload)
		VALUES ($1, $2, $3)`,
		event.EventID, event.EventName, payload,
	)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}
