package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery body. A nil return acknowledges the
// message. An error wrapped with Permanent dead-letters it immediately;
// any other error requeues it until the redelivery cap is reached.
type Handler func(ctx context.Context, msg amqp091.Delivery) error

var errPermanent = errors.New("permanent failure")

// Permanent marks err as not worth retrying (poison input).
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", errPermanent, err)
}

func IsPermanent(err error) bool {
	return errors.Is(err, errPermanent)
}

// Consumer drains one durable queue bound to the events exchange. Each
// queue has a paired "<queue>.dead" dead-letter queue; rejected
// deliveries land there instead of cycling forever.
type Consumer struct {
	conn            *amqp091.Connection
	queue           string
	maxRedeliveries int
	logger          *slog.Logger
	retries         *redeliveryTracker
}

func NewRabbitConsumer(conn *amqp091.Connection, exchange, queue string, maxRedeliveries int, logger *slog.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, exchange); err != nil {
		return nil, err
	}

	deadQueue := queue + ".dead"
	if _, err := ch.QueueDeclare(deadQueue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare dead-letter queue: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp091.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": deadQueue,
	}); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(queue, "", exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	if maxRedeliveries < 1 {
		maxRedeliveries = 1
	}

	return &Consumer{
		conn:            conn,
		queue:           queue,
		maxRedeliveries: maxRedeliveries,
		logger:          logger,
		retries:         newRedeliveryTracker(),
	}, nil
}

func (c *Consumer) Start(ctx context.Context, handler Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(32, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume queue: %w", err)
	}

	go func() {
		<-ctx.Done()
		ch.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("consumer channel closed", "queue", c.queue)
				return nil
			}
			c.dispatch(ctx, msg, handler)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg amqp091.Delivery, handler Handler) {
	err := handler(ctx, msg)
	if err == nil {
		c.retries.forget(msg.MessageId)
		_ = msg.Ack(false)
		return
	}

	if IsPermanent(err) {
		c.logger.Error("dead-lettering message",
			"queue", c.queue, "message_id", msg.MessageId, "err", err)
		c.retries.forget(msg.MessageId)
		_ = msg.Nack(false, false)
		return
	}

	if c.retries.bump(msg.MessageId) >= c.maxRedeliveries {
		c.logger.Error("redelivery budget exhausted, dead-lettering",
			"queue", c.queue, "message_id", msg.MessageId, "err", err)
		c.retries.forget(msg.MessageId)
		_ = msg.Nack(false, false)
		return
	}

	c.logger.Warn("message processing failed, requeueing",
		"queue", c.queue, "message_id", msg.MessageId, "err", err)
	_ = msg.Nack(false, true)
}

func (c *Consumer) Close() error {
	return c.conn.Close()
}

// redeliveryTracker counts delivery attempts per message id. Entries are
// dropped on ack or dead-letter, so the map only holds in-flight retries.
type redeliveryTracker struct {
	mu       sync.Mutex
	attempts map[string]int
}

func newRedeliveryTracker() *redeliveryTracker {
	return &redeliveryTracker{attempts: make(map[string]int)}
}

func (t *redeliveryTracker) bump(id string) int {
	if id == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[id]++
	return t.attempts[id]
}

func (t *redeliveryTracker) forget(id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, id)
}
