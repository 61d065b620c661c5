// Package inventory owns the stock ledger and the saga consumer that
// mutates it. Ledger counters are only ever touched by event handlers
// and the explicit restock operation; storefront requests never write
// them directly.
package inventory

import (
	"context"
	"errors"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/contracts"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Reservation states. A reservation moves RESERVED -> COMMITTED on
// payment or RESERVED -> RELEASED on cancellation, never both.
const (
	StateReserved  = "RESERVED"
	StateCommitted = "COMMITTED"
	StateReleased  = "RELEASED"
)

// Ledger applies saga effects to product stock counters. Every method is
// idempotent per event id: a redelivered event is a no-op. Implementations
// must apply all items of an event atomically or not at all.
type Ledger interface {
	// Reserve moves stock into preservedStock for each item and records
	// a reservation per (order, product). Fails the whole event when a
	// product is unknown or short on stock.
	Reserve(ctx context.Context, eventID, orderID string, items []contracts.Item) error

	// Commit turns the order's outstanding reservations into permanent
	// deductions (preservedStock shrinks, stock stays).
	Commit(ctx context.Context, eventID, orderID string) error

	// Release returns the order's outstanding reservations to available
	// stock. Releasing an already committed or released order is a no-op.
	Release(ctx context.Context, eventID, orderID string) error
}
