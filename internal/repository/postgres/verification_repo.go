package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/soslanov/authd/internal/domain/verification"
)

var _ verification.Repo = (*VerificationRepo)(nil)

type VerificationRepo struct{ db *DB }

func NewVerificationRepo(db *DB) *VerificationRepo { return &VerificationRepo{db: db} }

const (
	qCodeInsert = `
INSERT INTO verification_codes (id, user_id, type, expires_at)
VALUES ($1, $2, $3, $4)
RETURNING created_at;`

	// Lookup and delete as one statement: of N concurrent consumers
	// exactly one sees the row.
	qCodeConsume = `
DELETE FROM verification_codes
WHERE id = $1 AND type = $2 AND expires_at > now()
RETURNING user_id;`

	qCodeCountRecent = `
SELECT COUNT(*)
FROM verification_codes
WHERE user_id = $1 AND type = $2 AND created_at > $3;`
)

func (r *VerificationRepo) Issue(ctx context.Context, userID string, kind verification.Kind, ttl time.Duration) (*verification.Code, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	c := verification.Code{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qCodeInsert, c.ID, c.UserID, string(c.Kind), c.ExpiresAt).
		Scan(&c.CreatedAt); err != nil {
		return nil, fmt.Errorf("code insert: %w", err)
	}
	return &c, nil
}

func (r *VerificationRepo) Consume(ctx context.Context, id string, kind verification.Kind) (string, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var userID string
	eq := r.db.execQueryer(ctx)
	err := eq.QueryRow(ctx, qCodeConsume, id, string(kind)).Scan(&userID)
	if err != nil {
		// Codes are opaque to clients; a malformed id is the same as an
		// unknown one.
		if errors.Is(err, pgx.ErrNoRows) || pgErrCode(err) == pgInvalidTextValue {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("code consume: %w", err)
	}
	return userID, nil
}

func (r *VerificationRepo) CountRecent(ctx context.Context, userID string, kind verification.Kind, window time.Duration) (int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	since := time.Now().UTC().Add(-window)
	var n int
	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qCodeCountRecent, userID, string(kind), since).Scan(&n); err != nil {
		return 0, fmt.Errorf("code count recent: %w", err)
	}
	return n, nil
}
