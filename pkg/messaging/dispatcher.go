package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rabbitmq/amqp091-go"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/contracts"
)

// HandlerFunc processes one decoded envelope.
type HandlerFunc func(ctx context.Context, env contracts.Envelope) error

// Dispatcher routes envelopes to registered handlers by event name.
// Events nobody registered for are acknowledged and dropped.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

func (d *Dispatcher) On(eventName string, h HandlerFunc) {
	d.handlers[eventName] = h
}

// Handle implements Handler. A body that is not a valid envelope is
// poison input: it is dead-lettered, never requeued.
func (d *Dispatcher) Handle(ctx context.Context, msg amqp091.Delivery) error {
	var env contracts.Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		return Permanent(fmt.Errorf("invalid envelope: %w", err))
	}
	if env.EventID == "" {
		// Old producers did not stamp ids; fall back to the broker id so
		// idempotency tracking still has a key.
		env.EventID = msg.MessageId
	}

	h, ok := d.handlers[env.EventName]
	if !ok {
		d.logger.Info("ignoring event", "event", env.EventName, "event_id", env.EventID)
		return nil
	}

	if err := h(ctx, env); err != nil {
		return err
	}
	d.logger.Info("event applied", "event", env.EventName, "event_id", env.EventID)
	return nil
}
