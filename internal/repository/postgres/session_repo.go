package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/soslanov/authd/internal/domain/session"
)

var _ session.Repo = (*SessionRepo)(nil)

type SessionRepo struct{ db *DB }

func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

const (
	qSessionInsert = `
INSERT INTO sessions (id, user_id, user_agent, expires_at)
VALUES ($1, $2, $3, $4)
RETURNING created_at;`

	qSessionByID = `
SELECT id, user_id, user_agent, created_at, expires_at
FROM sessions
WHERE id = $1;`

	qSessionExtend = `UPDATE sessions SET expires_at = $2 WHERE id = $1;`

	qSessionDelete = `DELETE FROM sessions WHERE id = $1;`

	qSessionDeleteForUser = `DELETE FROM sessions WHERE user_id = $1;`
)

func (r *SessionRepo) Create(ctx context.Context, s *session.Session) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qSessionInsert, s.ID, s.UserID, s.UserAgent, s.ExpiresAt).
		Scan(&s.CreatedAt); err != nil {
		return fmt.Errorf("session insert: %w", err)
	}
	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*session.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var s session.Session
	eq := r.db.execQueryer(ctx)
	err := eq.QueryRow(ctx, qSessionByID, id).
		Scan(&s.ID, &s.UserID, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgErrCode(err) == pgInvalidTextValue {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session by id: %w", err)
	}
	return &s, nil
}

func (r *SessionRepo) Extend(ctx context.Context, id string, newExpiry time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	tag, err := eq.Exec(ctx, qSessionExtend, id, newExpiry)
	if err != nil {
		return fmt.Errorf("session extend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if _, err := eq.Exec(ctx, qSessionDelete, id); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}

func (r *SessionRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if _, err := eq.Exec(ctx, qSessionDeleteForUser, userID); err != nil {
		return fmt.Errorf("session delete for user: %w", err)
	}
	return nil
}
