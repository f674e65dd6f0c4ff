package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisNotifier) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisNotifier(client, "test:notifications", zap.NewNop())
}

func TestRedisNotifier_PublishAppendsToStream(t *testing.T) {
	mr, n := setupTestRedis(t)

	err := n.publish(context.Background(), Event{
		Type:    EventAppointmentBooked,
		Payload: map[string]any{"appointment_id": 42, "patient_id": 9},
	})
	require.NoError(t, err)

	entries, err := mr.Stream("test:notifications")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := map[string]string{}
	for i := 0; i+1 < len(entries[0].Values); i += 2 {
		values[entries[0].Values[i]] = entries[0].Values[i+1]
	}
	assert.Equal(t, "appointment_booked", values["type"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(values["payload"]), &payload))
	assert.Equal(t, float64(42), payload["appointment_id"])
	assert.NotEmpty(t, values["occurred_at"])
}

func TestRedisNotifier_NotifyIsAsync(t *testing.T) {
	mr, n := setupTestRedis(t)

	n.Notify(context.Background(), Event{Type: EventSessionCancelled, Payload: map[string]any{"session_id": 1}})

	assert.Eventually(t, func() bool {
		entries, err := mr.Stream("test:notifications")
		return err == nil && len(entries) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRedisNotifier_FailureIsSwallowed(t *testing.T) {
	mr, n := setupTestRedis(t)
	mr.Close()

	// must not panic or block the caller
	n.Notify(context.Background(), Event{Type: EventAppointmentCanceled})
	err := n.publish(context.Background(), Event{Type: EventAppointmentCanceled})
	assert.Error(t, err)
}

func TestRedisNotifier_CloseWaitsForInFlight(t *testing.T) {
	mr, n := setupTestRedis(t)

	for i := 0; i < 20; i++ {
		n.Notify(context.Background(), Event{Type: EventAppointmentBooked, Payload: map[string]any{"appointment_id": i}})
	}
	require.True(t, n.Close(2*time.Second))

	entries, err := mr.Stream("test:notifications")
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestRedisNotifier_CloseIdle(t *testing.T) {
	_, n := setupTestRedis(t)
	assert.True(t, n.Close(10*time.Millisecond))
}
