package notification

import (
	"context"
	"time"
)

// Notification is the delivery log kept by the email notifier.
type Notification struct {
	ID      int64     `json:"id"`
	UserID  string    `json:"user_id"`
	Type    string    `json:"type"`
	SentAt  time.Time `json:"sent_at"`
	Payload string    `json:"payload"`
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

type Clock interface {
	Now() time.Time
}
