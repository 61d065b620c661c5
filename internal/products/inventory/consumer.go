package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/contracts"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/messaging"
)

// RegisterLedgerHandlers wires the three saga effects onto d.
func RegisterLedgerHandlers(d *messaging.Dispatcher, ledger Ledger) {
	d.On(contracts.EventOrderCreated, func(ctx context.Context, env contracts.Envelope) error {
		var data contracts.OrderCreatedData
		if err := env.DecodeData(&data); err != nil {
			return messaging.Permanent(err)
		}
		if err := validateItems(data.OrderID, data.Items); err != nil {
			return messaging.Permanent(err)
		}
		return classify(ledger.Reserve(ctx, env.EventID, data.OrderID, data.Items))
	})

	d.On(contracts.EventOrderPaid, func(ctx context.Context, env contracts.Envelope) error {
		var data contracts.OrderPaidData
		if err := env.DecodeData(&data); err != nil {
			return messaging.Permanent(err)
		}
		if data.OrderID == "" {
			return messaging.Permanent(errors.New("OrderPaid without orderId"))
		}
		return classify(ledger.Commit(ctx, env.EventID, data.OrderID))
	})

	d.On(contracts.EventOrderCanceled, func(ctx context.Context, env contracts.Envelope) error {
		var data contracts.OrderCanceledData
		if err := env.DecodeData(&data); err != nil {
			return messaging.Permanent(err)
		}
		if data.OrderID == "" {
			return messaging.Permanent(errors.New("OrderCanceled without orderId"))
		}
		return classify(ledger.Release(ctx, env.EventID, data.OrderID))
	})
}

func validateItems(orderID string, items []contracts.Item) error {
	if orderID == "" {
		return errors.New("OrderCreated without orderId")
	}
	if len(items) == 0 {
		return fmt.Errorf("OrderCreated for order %s without items", orderID)
	}
	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return fmt.Errorf("order %s has malformed item %+v", orderID, item)
		}
	}
	return nil
}

// classify separates deterministic ledger rejections, which will fail on
// every redelivery, from transient failures worth retrying.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrInsufficientStock):
		return messaging.Permanent(err)
	default:
		return err
	}
}
