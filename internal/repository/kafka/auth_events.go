package kafka

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// SecurityEvent is the JSON payload published for account-level changes
// the notifier should tell the user about.
type SecurityEvent struct {
	UserID string    `json:"user_id"`
	Event  string    `json:"event"`
	At     time.Time `json:"at"`
}

const EventPasswordChanged = "password_changed"

type SecurityEventsKafka struct {
	p *Producer
}

func NewSecurityEvents(brokers []string, topic string) *SecurityEventsKafka {
	return &SecurityEventsKafka{p: NewProducer(brokers, topic)}
}

func (k *SecurityEventsKafka) WithLogger(l *zap.Logger) *SecurityEventsKafka {
	return &SecurityEventsKafka{p: k.p.WithLogger(l)}
}

func (k *SecurityEventsKafka) Publish(ctx context.Context, ev SecurityEvent) error {
	return k.p.PublishJSON(ctx, []byte(ev.UserID), ev)
}

func (k *SecurityEventsKafka) Close() error { return k.p.Close() }

// JSONHandler adapts a typed handler to the consumer contract. Malformed
// payloads are logged and skipped rather than retried forever.
func JSONHandler[T any](log *zap.Logger, handle func(ctx context.Context, key []byte, ev *T) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		var ev T
		if err := json.Unmarshal(value, &ev); err != nil {
			log.Warn("drop undecodable message", zap.Error(err))
			return nil
		}
		return handle(ctx, key, &ev)
	}
}
