package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/contracts"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, p *Payment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments (id, order_id, amount, status, reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		p.ID, p.OrderID, p.Amount, p.Status, p.Reference, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Payment, error) {
	var (
		p     Payment
		txRef *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, order_id, amount, status, reference, transaction_ref, created_at, updated_at
		FROM payments
		WHERE id = $1`, id,
	).Scan(&p.ID, &p.OrderID, &p.Amount, &p.Status, &p.Reference, &txRef, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if txRef != nil {
		p.TransactionRef = *txRef
	}
	return &p, nil
}

// Complete flips a PENDING payment to COMPLETED and enqueues the
// OrderPaid event in one transaction. The status guard makes the flip,
// and therefore the event, happen at most once.
func (s *PostgresStore) Complete(ctx context.Context, id, transactionRef string, event contracts.Envelope) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = $2, transaction_ref = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`,
		id, StatusCompleted, transactionRef, StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return false, fmt.Errorf("marshal event: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payment_outbox (event_id, event_type, payload)
		VALUES ($1, $2, $3)`,
		event.EventID, event.EventName, payload,
	)
	if err != nil {
		return false, fmt.Errorf("insert outbox: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) Fail(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		id, StatusFailed, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("fail payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil // already settled one way or the other
	}
	return nil
}
