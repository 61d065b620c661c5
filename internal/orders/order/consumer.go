package order

import (
	"context"
	"errors"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/contracts"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/messaging"
)

// StatusNotifier pushes a status change to any live watchers of an
// order. Implemented by the websocket hub.
type StatusNotifier interface {
	BroadcastOrderUpdate(orderID, status string)
}

// Cache invalidates cached order reads after a status change.
type Cache interface {
	Invalidate(ctx context.Context, orderID string)
}

// PaidMarker applies OrderPaid events; implemented by Service.
type PaidMarker interface {
	MarkPaid(ctx context.Context, eventID, orderID string) (Status, error)
}

// RegisterSagaHandlers wires the order-side event effects onto d.
// OrderPaid arrives from the payment service and flips the order;
// OrderStatusUpdated and OrderCanceled are this service's own events
// looping back through the bus, consumed here only to fan out to
// websocket watchers and drop stale cache entries.
func RegisterSagaHandlers(d *messaging.Dispatcher, svc PaidMarker, notifier StatusNotifier, cache Cache) {
	d.On(contracts.EventOrderPaid, func(ctx context.Context, env contracts.Envelope) error {
		var data contracts.OrderPaidData
		if err := env.DecodeData(&data); err != nil {
			return messaging.Permanent(err)
		}
		if data.OrderID == "" {
			return messaging.Permanent(errors.New("OrderPaid without orderId"))
		}

		status, err := svc.MarkPaid(ctx, env.EventID, data.OrderID)
		if err != nil {
			if errors.Is(err, ErrOrderNotFound) {
				return messaging.Permanent(err)
			}
			return err
		}
		if status != "" {
			notifier.BroadcastOrderUpdate(data.OrderID, string(status))
			cache.Invalidate(ctx, data.OrderID)
		}
		return nil
	})

	d.On(contracts.EventOrderStatusUpdated, func(ctx context.Context, env contracts.Envelope) error {
		var data contracts.OrderStatusUpdatedData
		if err := env.DecodeData(&data); err != nil {
			return messaging.Permanent(err)
		}
		if data.OrderID == "" || data.NewStatus == "" {
			return messaging.Permanent(errors.New("OrderStatusUpdated without orderId or newStatus"))
		}
		notifier.BroadcastOrderUpdate(data.OrderID, data.NewStatus)
		cache.Invalidate(ctx, data.OrderID)
		return nil
	})

	d.On(contracts.EventOrderCanceled, func(ctx context.Context, env contracts.Envelope) error {
		var data contracts.OrderCanceledData
		if err := env.DecodeData(&data); err != nil {
			return messaging.Permanent(err)
		}
		if data.OrderID == "" {
			return messaging.Permanent(errors.New("OrderCanceled without orderId"))
		}
		notifier.BroadcastOrderUpdate(data.OrderID, string(StatusCanceled))
		cache.Invalidate(ctx, data.OrderID)
		return nil
	})
}
