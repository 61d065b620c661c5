package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Dial connects to RabbitMQ with a bounded number of attempts and
// exponential backoff between them. Callers run it off the request path
// so HTTP serving never waits on the broker.
func Dial(ctx context.Context, url string, maxAttempts int, logger *slog.Logger) (*amqp091.Connection, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		delay := retryDelay(attempt)
		logger.Warn("rabbitmq dial failed", "attempt", attempt, "retry_in", delay, "err", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("connect rabbitmq after %d attempts: %w", maxAttempts, lastErr)
}
