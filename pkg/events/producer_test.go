package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducer_NoBrokers(t *testing.T) {
	t.Parallel()

	p, err := NewProducer(nil)
	assert.Nil(t, p)
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	var r Recorder
	ctx := context.Background()
	require.NoError(t, r.PublishEvent(ctx, TopicEntitlement, "u1", New("token_issued", map[string]any{"game_id": 7})))
	require.NoError(t, r.PublishEvent(ctx, TopicEntitlement, "u1", New("token_revoked", nil)))

	assert.Len(t, r.Events(), 2)
	issued := r.OfType("token_issued")
	require.Len(t, issued, 1)
	assert.Equal(t, 7, issued[0].Event.Data["game_id"])
}

func TestProducer_Kafka(t *testing.T) {
	broker := os.Getenv("KAFKA_TEST_BROKER")
	if broker == "" {
		t.Skip("KAFKA_TEST_BROKER is required for kafka tests")
	}

	topic := "retro_games_test_" + uuid.NewString()[:8]
	p, err := NewProducer([]string{broker})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.Eventually(t, func() bool {
		return p.PublishEvent(ctx, topic, "k", New("payment_completed", map[string]any{"amount": 499})) == nil
	}, 15*time.Second, 500*time.Millisecond)

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: []string{broker}, Topic: topic, MinBytes: 1, MaxBytes: 1 << 20})
	t.Cleanup(func() { _ = r.Close() })

	msg, err := r.ReadMessage(ctx)
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "payment_completed", ev.Type)
	assert.EqualValues(t, 499, ev.Data["amount"])
}
