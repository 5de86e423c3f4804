package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// Event names published by the exchange core.
const (
	OrderApproved     = "orderApproved"
	OrderRejected     = "orderRejected"
	TradeClose        = "tradeClose"
	MarketPriceUpdate = "marketPriceUpdate"
	RequestApproved   = "requestApproved"
	RequestRejected   = "requestRejected"
)

// Event is a named payload broadcast to connected clients.
type Event struct {
	Name    string    `json:"name"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sentAt"`
}

// Notifier delivers events to downstream systems.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// Emit publishes event and only logs failures. Delivery never affects the
// outcome of the operation that produced the event.
func Emit(ctx context.Context, n Notifier, logger *slog.Logger, event Event) {
	if n == nil {
		return
	}
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}
	if err := n.Publish(ctx, event); err != nil && logger != nil {
		logger.Warn("notification delivery failed", slog.String("event", event.Name), slog.Any("error", err))
	}
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Publish writes the event to the structured logger.
func (n *LoggerNotifier) Publish(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", slog.String("event", event.Name), slog.Any("payload", event.Payload))
	return nil
}

// RedisNotifier publishes events as JSON on a Redis pub/sub channel, where the
// socket gateway picks them up. A circuit breaker stops publishing while
// Redis keeps failing so a dead broker does not slow every settlement.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
	cb      *gobreaker.CircuitBreaker
}

// NewRedisNotifier builds a notifier publishing to channel.
func NewRedisNotifier(client redis.UniversalClient, channel string) *RedisNotifier {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "redis-notifier",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &RedisNotifier{client: client, channel: channel, cb: cb}
}

// Publish encodes and publishes the event.
func (n *RedisNotifier) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Name, err)
	}
	_, err = n.cb.Execute(func() (interface{}, error) {
		return nil, n.client.Publish(ctx, n.channel, payload).Err()
	})
	if err != nil {
		return fmt.Errorf("publish event %s: %w", event.Name, err)
	}
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Publish delivers to all notifiers even when some fail.
func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory. It is used by tests across packages.
type Recorder struct {
	events chan Event
}

// NewRecorder builds a recorder buffering up to size events.
func NewRecorder(size int) *Recorder {
	return &Recorder{events: make(chan Event, size)}
}

// Publish records the event, dropping it when the buffer is full.
func (r *Recorder) Publish(_ context.Context, event Event) error {
	select {
	case r.events <- event:
	default:
	}
	return nil
}

// Events drains and returns the recorded events.
func (r *Recorder) Events() []Event {
	var out []Event
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		default:
			return out
		}
	}
}
