package order

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/contracts"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/messaging"
)

type fakePaidMarker struct {
	result Status
	err    error
	calls  []string
}

func (f *fakePaidMarker) MarkPaid(_ context.Context, eventID, orderID string) (Status, error) {
	f.calls = append(f.calls, orderID)
	return f.result, f.err
}

type fakeNotifier struct {
	updates map[string]string
}

func (f *fakeNotifier) BroadcastOrderUpdate(orderID, status string) {
	if f.updates == nil {
		f.updates = make(map[string]string)
	}
	f.updates[orderID] = status
}

type fakeCache struct {
	invalidated []string
}

func (f *fakeCache) Invalidate(_ context.Context, orderID string) {
	f.invalidated = append(f.invalidated, orderID)
}

func sagaDelivery(t *testing.T, eventName string, data any) amqp091.Delivery {
	t.Helper()
	env, err := contracts.NewEnvelope(eventName, data)
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return amqp091.Delivery{Body: body, MessageId: env.EventID}
}

func newSagaDispatcher(marker PaidMarker, notifier StatusNotifier, cache Cache) *messaging.Dispatcher {
	d := messaging.NewDispatcher(slog.New(slog.DiscardHandler))
	RegisterSagaHandlers(d, marker, notifier, cache)
	return d
}

func TestOrderPaidFlipsAndNotifies(t *testing.T) {
	marker := &fakePaidMarker{result: StatusPaid}
	notifier := &fakeNotifier{}
	cache := &fakeCache{}
	d := newSagaDispatcher(marker, notifier, cache)

	msg := sagaDelivery(t, contracts.EventOrderPaid, contracts.OrderPaidData{
		OrderID:   "order1",
		PaymentID: "pay1",
	})
	require.NoError(t, d.Handle(context.Background(), msg))

	assert.Equal(t, []string{"order1"}, marker.calls)
	assert.Equal(t, string(StatusPaid), notifier.updates["order1"])
	assert.Equal(t, []string{"order1"}, cache.invalidated)
}

func TestOrderPaidDuplicateStaysQuiet(t *testing.T) {
	marker := &fakePaidMarker{result: ""}
	notifier := &fakeNotifier{}
	cache := &fakeCache{}
	d := newSagaDispatcher(marker, notifier, cache)

	msg := sagaDelivery(t, contracts.EventOrderPaid, contracts.OrderPaidData{OrderID: "order1"})
	require.NoError(t, d.Handle(context.Background(), msg))

	assert.Empty(t, notifier.updates, "already-applied event must not re-broadcast")
	assert.Empty(t, cache.invalidated)
}

func TestOrderPaidUnknownOrderIsDeadLettered(t *testing.T) {
	marker := &fakePaidMarker{err: ErrOrderNotFound}
	d := newSagaDispatcher(marker, &fakeNotifier{}, &fakeCache{})

	msg := sagaDelivery(t, contracts.EventOrderPaid, contracts.OrderPaidData{OrderID: "ghost"})
	err := d.Handle(context.Background(), msg)

	require.Error(t, err)
	assert.True(t, messaging.IsPermanent(err))
}

func TestOrderPaidWithoutOrderIDIsDeadLettered(t *testing.T) {
	marker := &fakePaidMarker{}
	d := newSagaDispatcher(marker, &fakeNotifier{}, &fakeCache{})

	msg := sagaDelivery(t, contracts.EventOrderPaid, contracts.OrderPaidData{})
	err := d.Handle(context.Background(), msg)

	require.Error(t, err)
	assert.True(t, messaging.IsPermanent(err))
	assert.Empty(t, marker.calls)
}

func TestStatusUpdatedNotifiesWatchers(t *testing.T) {
	notifier := &fakeNotifier{}
	cache := &fakeCache{}
	d := newSagaDispatcher(&fakePaidMarker{}, notifier, cache)

	msg := sagaDelivery(t, contracts.EventOrderStatusUpdated, contracts.OrderStatusUpdatedData{
		OrderID:   "order1",
		NewStatus: string(StatusShipped),
	})
	require.NoError(t, d.Handle(context.Background(), msg))

	assert.Equal(t, string(StatusShipped), notifier.updates["order1"])
	assert.Equal(t, []string{"order1"}, cache.invalidated)
}

func TestCanceledNotifiesWatchers(t *testing.T) {
	notifier := &fakeNotifier{}
	d := newSagaDispatcher(&fakePaidMarker{}, notifier, &fakeCache{})

	msg := sagaDelivery(t, contracts.EventOrderCanceled, contracts.OrderCanceledData{
		OrderID: "order1",
		Items:   []contracts.Item{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, d.Handle(context.Background(), msg))

	assert.Equal(t, string(StatusCanceled), notifier.updates["order1"])
}

func TestOwnOrderCreatedIsIgnored(t *testing.T) {
	marker := &fakePaidMarker{}
	notifier := &fakeNotifier{}
	d := newSagaDispatcher(marker, notifier, &fakeCache{})

	msg := sagaDelivery(t, contracts.EventOrderCreated, contracts.OrderCreatedData{
		OrderID: "order1",
		Items:   []contracts.Item{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, d.Handle(context.Background(), msg))

	assert.Empty(t, marker.calls)
	assert.Empty(t, notifier.updates)
}
