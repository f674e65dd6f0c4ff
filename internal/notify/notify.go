// Package notify dispatches scheduling events to the external notification
// service. Dispatch is fire-and-forget: callers never see delivery errors.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type EventType string

const (
	EventAppointmentBooked   EventType = "appointment_booked"
	EventAppointmentCanceled EventType = "appointment_canceled"
	EventSessionCancelled    EventType = "session_cancelled"
)

type Event struct {
	Type       EventType
	Payload    map[string]any
	OccurredAt time.Time
}

type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// LogNotifier writes events to the logger. Used when no Redis is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, ev Event) {
	n.logger.Info("notification event",
		zap.String("event_type", string(ev.Type)),
		zap.Any("payload", ev.Payload),
	)
}

// RedisNotifier appends events to a Redis stream consumed by the delivery
// service.
type RedisNotifier struct {
	client  *redis.Client
	stream  string
	timeout time.Duration
	logger  *zap.Logger
	maxLen  int64

	wg sync.WaitGroup
}

func NewRedisNotifier(client *redis.Client, stream string, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		stream:  stream,
		timeout: 2 * time.Second,
		logger:  logger,
		maxLen:  100000,
	}
}

func (n *RedisNotifier) Notify(ctx context.Context, ev Event) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		_ = n.publish(context.WithoutCancel(ctx), ev)
	}()
}

// Close waits up to timeout for in-flight publishes and reports whether
// they all finished. Notify must not be called after Close.
func (n *RedisNotifier) Close(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		n.logger.Warn("notifications still in flight at shutdown", zap.String("stream", n.stream))
		return false
	}
}

func (n *RedisNotifier) publish(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		n.logger.Error("marshal notification payload", zap.String("event_type", string(ev.Type)), zap.Error(err))
		return err
	}

	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":        string(ev.Type),
			"payload":     string(payload),
			"occurred_at": ev.OccurredAt.Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		n.logger.Warn("publish notification failed",
			zap.String("event_type", string(ev.Type)),
			zap.String("stream", n.stream),
			zap.Error(err),
		)
		return err
	}
	return nil
}
