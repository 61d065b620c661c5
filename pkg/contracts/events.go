// Package contracts defines the event envelope and payloads exchanged
// between the order, product and payment services over the bus.
package contracts

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderPaid          = "OrderPaid"
	EventOrderCanceled      = "OrderCanceled"
	EventOrderStatusUpdated = "OrderStatusUpdated"
)

// Envelope is the bus message body. EventID is the idempotency key for
// consumers; it doubles as the AMQP MessageId.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventName string          `json:"eventName"`
	Data      json.RawMessage `json:"data"`
}

// Item is a denormalized order line, enough for the inventory ledger to
// apply its effect without calling back into the order service.
type Item struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type OrderCreatedData struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Items   []Item `json:"items"`
}

type OrderPaidData struct {
	OrderID        string `json:"orderId"`
	PaymentID      string `json:"paymentId"`
	TransactionRef string `json:"transactionRef"`
}

type OrderCanceledData struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId,omitempty"`
	Items   []Item `json:"items"`
}

type OrderStatusUpdatedData struct {
	OrderID   string `json:"orderId"`
	NewStatus string `json:"newStatus"`
}

// NewEnvelope wraps a payload in a fresh envelope.
func NewEnvelope(eventName string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s data: %w", eventName, err)
	}
	return Envelope{
		EventID:   uuid.NewString(),
		EventName: eventName,
		Data:      raw,
	}, nil
}

// DecodeData unmarshals the envelope payload into out.
func (e Envelope) DecodeData(out any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.EventName)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", e.EventName, err)
	}
	return nil
}
