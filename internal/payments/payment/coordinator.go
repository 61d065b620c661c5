package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/payments/chain"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/contracts"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

var (
	ErrInvalidRequest  = errors.New("missing orderId, amount or recipientWallet")
	ErrPaymentNotFound = errors.New("payment not found")
)

type Payment struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"orderId"`
	Amount         int64     `json:"amount"`
	Status         Status    `json:"status"`
	Reference      string    `json:"reference"`
	TransactionRef string    `json:"transactionRef,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Store persists payments. Complete must write the OrderPaid outbox row
// in the same transaction as the status flip and report applied=false
// when the payment was no longer PENDING, so the event goes out at most
// once no matter how often verification runs.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	Complete(ctx context.Context, id, transactionRef string, event contracts.Envelope) (applied bool, err error)
	Fail(ctx context.Context, id string) error
}

// Coordinator owns the payment leg of the saga: it issues payment
// descriptors and verifies settlement against the chain oracle.
type Coordinator struct {
	store      Store
	verifier   chain.Verifier
	shopWallet string
	logger     *slog.Logger
}

func NewCoordinator(store Store, verifier chain.Verifier, shopWallet string, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:      store,
		verifier:   verifier,
		shopWallet: shopWallet,
		logger:     logger,
	}
}

type ChargeRequest struct {
	OrderID         string `json:"orderId"`
	Amount          int64  `json:"amount"`
	RecipientWallet string `json:"recipientWallet"`
}

type Charge struct {
	PaymentID  string `json:"paymentId"`
	PaymentURL string `json:"paymentUrl"`
	Reference  string `json:"reference"`
}

// InitiateCharge creates a PENDING payment and returns the descriptor a
// wallet needs to settle it. The reference is embedded in the chain
// transaction and is how verification finds it later.
func (c *Coordinator) InitiateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if req.OrderID == "" || req.Amount <= 0 || req.RecipientWallet == "" {
		return nil, ErrInvalidRequest
	}

	now := time.Now().UTC()
	p := &Payment{
		ID:        uuid.NewString(),
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		Status:    StatusPending,
		Reference: uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	return &Charge{
		PaymentID:  p.ID,
		PaymentURL: PayURL(req.RecipientWallet, req.Amount, p.Reference, req.OrderID),
		Reference:  p.Reference,
	}, nil
}

type VerifyResult struct {
	Status         Status `json:"status"`
	TransactionRef string `json:"transactionRef,omitempty"`
}

// VerifyPayment is safe to call repeatedly with the same arguments: a
// payment that already completed short-circuits without touching the
// chain, and the store guarantees the OrderPaid event fires at most once.
func (c *Coordinator) VerifyPayment(ctx context.Context, reference, paymentID string) (*VerifyResult, error) {
	if reference == "" || paymentID == "" {
		return nil, ErrInvalidRequest
	}

	p, err := c.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if p.Status == StatusCompleted {
		return &VerifyResult{Status: StatusCompleted, TransactionRef: p.TransactionRef}, nil
	}

	signature, err := c.verifier.FindTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}

	if err := c.verifier.ValidateTransfer(ctx, signature, c.shopWallet, p.Amount, reference); err != nil {
		if errors.Is(err, chain.ErrTransferInvalid) {
			c.logger.Error("transfer validation failed",
				"payment_id", p.ID, "order_id", p.OrderID, "signature", signature, "err", err)
			if failErr := c.store.Fail(ctx, p.ID); failErr != nil {
				c.logger.Error("mark payment failed", "payment_id", p.ID, "err", failErr)
			}
		}
		return nil, err
	}

	event, err := contracts.NewEnvelope(contracts.EventOrderPaid, contracts.OrderPaidData{
		OrderID:        p.OrderID,
		PaymentID:      p.ID,
		TransactionRef: signature,
	})
	if err != nil {
		return nil, err
	}

	applied, err := c.store.Complete(ctx, p.ID, signature, event)
	if err != nil {
		return nil, fmt.Errorf("complete payment: %w", err)
	}
	if !applied {
		// A concurrent verification won the race; report its outcome.
		current, err := c.store.Get(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		return &VerifyResult{Status: current.Status, TransactionRef: current.TransactionRef}, nil
	}

	c.logger.Info("payment completed",
		"payment_id", p.ID, "order_id", p.OrderID, "transaction", signature)
	return &VerifyResult{Status: StatusCompleted, TransactionRef: signature}, nil
}
