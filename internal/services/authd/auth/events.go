package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soslanov/authd/internal/domain/outbox"
	outboxrunner "github.com/soslanov/authd/internal/outbox"
)

func enqueuePasswordChanged(ctx context.Context, repo outbox.Repository, userID string, at time.Time) error {
	data, err := json.Marshal(outboxrunner.PasswordChangedPayload{UserID: userID, At: at})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return repo.Enqueue(ctx, uuid.NewString(), outbox.KindPasswordChanged, data)
}
