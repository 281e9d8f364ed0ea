package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/soslanov/authd/internal/domain/outbox"
	"github.com/soslanov/authd/internal/obs/retry"
	kafkax "github.com/soslanov/authd/internal/repository/kafka"
)

type PasswordChangedPayload struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers (publish, etc.)",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
)

func instrument(kind string, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	if pol.Name == "" {
		pol.Name = "outbox_" + kind
	}
	return func(ctx context.Context, data []byte) error {
		start := time.Now()
		err := retry.Do(ctx, func() error { return h(ctx, data) }, pol)
		outboxHandlerLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			outboxHandlerErrors.WithLabelValues(kind).Inc()
		}
		return err
	}
}

func MakeGlobalHandler(pub *kafkax.SecurityEventsKafka, pol retry.Policy) outbox.GlobalHandler {
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		switch kind {
		case outbox.KindPasswordChanged:
			base := func(ctx context.Context, data []byte) error {
				var p PasswordChangedPayload
				if err := json.Unmarshal(data, &p); err != nil {
					return fmt.Errorf("unmarshal password-changed payload: %w", err)
				}
				return pub.Publish(ctx, kafkax.SecurityEvent{
					UserID: p.UserID,
					Event:  kafkax.EventPasswordChanged,
					At:     p.At,
				})
			}
			return instrument("password_changed", base, pol), nil
		default:
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
	}
}
