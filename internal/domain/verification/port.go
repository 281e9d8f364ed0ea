package verification

import (
	"context"
	"time"
)

type Repo interface {
	Issue(ctx context.Context, userID string, kind Kind, ttl time.Duration) (*Code, error)

	// Consume looks up and deletes the code as one unit and returns the
	// owning user id. Unknown, expired and already-consumed codes are
	// indistinguishable to the caller.
	Consume(ctx context.Context, id string, kind Kind) (string, error)

	CountRecent(ctx context.Context, userID string, kind Kind, window time.Duration) (int, error)
}
