package events

import (
	"context"
	"log/slog"
)

// Publish sends the event and logs failures. Domain writes never fail because of the broker.
func Publish(ctx context.Context, p Publisher, l *slog.Logger, topic, key string, ev Event) {
	if p == nil {
		return
	}
	if err := p.PublishEvent(ctx, topic, key, ev); err != nil {
		l.Error("kafka_publish_error", "topic", topic, "type", ev.Type, "error", err)
	}
}
