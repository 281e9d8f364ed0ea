// Package notifier turns security events from Kafka into emails and keeps
// a delivery log. It is downstream of the outbox: every event it sees was
// committed by the auth service.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/soslanov/authd/internal/domain/notification"
	"github.com/soslanov/authd/internal/domain/user"
	kafkax "github.com/soslanov/authd/internal/repository/kafka"
	"github.com/soslanov/authd/internal/repository/postgres"
)

type UserReader interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

type Deps struct {
	Log           *zap.Logger
	Users         UserReader
	Notifications notification.Repo
	Mail          notification.EmailSender
	Now           func() time.Time
}

var (
	notifierProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_events_total",
		Help: "Security events handled, by event type and outcome.",
	}, []string{"event", "outcome"})
	notifierSendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notifier_send_latency_seconds",
		Help:    "Latency of notification email sends.",
		Buckets: prometheus.DefBuckets,
	})
)

type Handler struct {
	log    *zap.Logger
	users  UserReader
	notifs notification.Repo
	mail   notification.EmailSender
	now    func() time.Time
}

func NewHandler(d Deps) *Handler {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{
		log:    d.Log.With(zap.String("component", "notifier.handler")),
		users:  d.Users,
		notifs: d.Notifications,
		mail:   d.Mail,
		now:    now,
	}
}

// HandleSecurityEvent sends the user an email about an account-level change.
// Events for deleted users and unknown event types are dropped, not retried.
func (h *Handler) HandleSecurityEvent(ctx context.Context, _ []byte, ev *kafkax.SecurityEvent) error {
	log := h.log.With(zap.String("user_id", ev.UserID), zap.String("event", ev.Event))

	subject, body, ok := composeSecurityEmail(ev)
	if !ok {
		log.Warn("unknown security event, dropping")
		notifierProcessed.WithLabelValues(ev.Event, "dropped").Inc()
		return nil
	}

	usr, err := h.users.GetByID(ctx, ev.UserID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			log.Warn("user gone, dropping event")
			notifierProcessed.WithLabelValues(ev.Event, "dropped").Inc()
			return nil
		}
		notifierProcessed.WithLabelValues(ev.Event, "error").Inc()
		return fmt.Errorf("get user: %w", err)
	}

	start := time.Now()
	msgID, err := h.mail.Send(ctx, usr.Email, subject, body)
	notifierSendLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		notifierProcessed.WithLabelValues(ev.Event, "error").Inc()
		return fmt.Errorf("send email: %w", err)
	}

	payload, _ := json.Marshal(ev)
	n := &notification.Notification{
		UserID:  usr.ID,
		Type:    ev.Event,
		SentAt:  h.now(),
		Payload: string(payload),
	}
	if err := h.notifs.Create(ctx, n); err != nil {
		// The email went out; losing the log row is not worth a redelivery
		// that would send it twice.
		log.Warn("record notification", zap.Error(err))
	}

	log.Info("notification sent", zap.String("message_id", msgID))
	notifierProcessed.WithLabelValues(ev.Event, "ok").Inc()
	return nil
}

func composeSecurityEmail(ev *kafkax.SecurityEvent) (subject, body string, ok bool) {
	switch ev.Event {
	case kafkax.EventPasswordChanged:
		subject = "Your password was changed"
		body = fmt.Sprintf(
			"The password for your account was changed at %s.\n\n"+
				"All active sessions have been signed out. If this was not you, "+
				"reset your password immediately.\n",
			ev.At.UTC().Format(time.RFC1123))
		return subject, body, true
	default:
		return "", "", false
	}
}
