package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/contracts"
)

// PostgresLedger implements Ledger with atomic counter updates. The
// inbox insert and every stock adjustment of one event share a single
// transaction, so a crash before ack can only redeliver an event whose
// effects either fully applied (and will be skipped) or fully rolled
// back.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresLedger(pool *pgxpool.Pool, logger *slog.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, logger: logger}
}

func (l *PostgresLedger) Reserve(ctx context.Context, eventID, orderID string, items []contracts.Item) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	fresh, err := l.recordEvent(ctx, tx, eventID, contracts.EventOrderCreated)
	if err != nil {
		return err
	}
	if !fresh {
		l.logger.Info("skipping duplicate event", "event_id", eventID, "order_id", orderID)
		return nil
	}

	for _, item := range items {
		tag, err := tx.Exec(ctx, `
			UPDATE products
			SET stock = stock - $2,
			    preserved_stock = preserved_stock + $2,
			    updated_at = NOW()
			WHERE id = $1 AND stock >= $2`,
			item.ProductID, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("reserve stock for %s: %w", item.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			return l.rejectItem(ctx, tx, orderID, item)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO reservations (order_id, product_id, quantity, state)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (order_id, product_id) DO NOTHING`,
			orderID, item.ProductID, item.Quantity, StateReserved,
		)
		if err != nil {
			return fmt.Errorf("record reservation: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (l *PostgresLedger) Commit(ctx context.Context, eventID, orderID string) error {
	return l.settle(ctx, eventID, orderID, contracts.EventOrderPaid, StateCommitted)
}

func (l *PostgresLedger) Release(ctx context.Context, eventID, orderID string) error {
	return l.settle(ctx, eventID, orderID, contracts.EventOrderCanceled, StateReleased)
}

func (l *PostgresLedger) settle(ctx context.Context, eventID, orderID, eventName, nextState string) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	fresh, err := l.recordEvent(ctx, tx, eventID, eventName)
	if err != nil {
		return err
	}
	if !fresh {
		l.logger.Info("skipping duplicate event", "event_id", eventID, "order_id", orderID)
		return nil
	}

	rows, err := tx.Query(ctx, `
		UPDATE reservations
		SET state = $2, updated_at = NOW()
		WHERE order_id = $1 AND state = $3
		RETURNING product_id, quantity`,
		orderID, nextState, StateReserved,
	)
	if err != nil {
		return fmt.Errorf("resolve reservations: %w", err)
	}

	var lines []contracts.Item
	for rows.Next() {
		var line contracts.Item
		if err := rows.Scan(&line.ProductID, &line.Quantity); err != nil {
			rows.Close()
			return err
		}
		lines = append(lines, line)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if len(lines) == 0 {
		// Already settled (e.g. a cancel arriving after payment) or an
		// order this ledger never reserved. Either way there is nothing
		// to move; record the event and move on.
		l.logger.Warn("no outstanding reservation for order",
			"order_id", orderID, "event", eventName)
		return tx.Commit(ctx)
	}

	for _, line := range lines {
		var adjust string
		if nextState == StateReleased {
			adjust = `
				UPDATE products
				SET stock = stock + $2,
				    preserved_stock = preserved_stock - $2,
				    updated_at = NOW()
				WHERE id = $1 AND preserved_stock >= $2`
		} else {
			adjust = `
				UPDATE products
				SET preserved_stock = preserved_stock - $2,
				    updated_at = NOW()
				WHERE id = $1 AND preserved_stock >= $2`
		}

		tag, err := tx.Exec(ctx, adjust, line.ProductID, line.Quantity)
		if err != nil {
			return fmt.Errorf("settle stock for %s: %w", line.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			// Would drive preservedStock negative; the counters are out
			// of step with the reservation log. Reject rather than clamp.
			return fmt.Errorf("preserved stock underflow for %s (order %s): %w",
				line.ProductID, orderID, ErrInsufficientStock)
		}
	}

	return tx.Commit(ctx)
}

// recordEvent claims the event id in the inbox. Returns false when the
// event was already processed.
func (l *PostgresLedger) recordEvent(ctx context.Context, tx pgx.Tx, eventID, eventName string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO inventory_inbox (event_id, event_name)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventName,
	)
	if err != nil {
		return false, fmt.Errorf("insert inbox: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (l *PostgresLedger) rejectItem(ctx context.Context, tx pgx.Tx, orderID string, item contracts.Item) error {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, item.ProductID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check product %s: %w", item.ProductID, err)
	}
	if !exists {
		return fmt.Errorf("reserve for order %s: product %s: %w", orderID, item.ProductID, ErrProductNotFound)
	}
	return fmt.Errorf("reserve %d of %s for order %s: %w", item.Quantity, item.ProductID, orderID, ErrInsufficientStock)
}
