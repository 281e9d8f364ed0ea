package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/soslanov/authd/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, username, password_hash, profile_image, bio, verified, is_active, last_login, created_at, updated_at`

const (
	qUserInsert = `
INSERT INTO users (id, email, username, password_hash, verified, is_active)
VALUES ($1, $2, $3, $4, FALSE, TRUE)
RETURNING created_at, updated_at;`

	qUserByID = `
SELECT ` + userColumns + `
FROM users
WHERE id = $1;`

	qUserByEmail = `
SELECT ` + userColumns + `
FROM users
WHERE email = $1;`

	qUserEmailTaken = `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1);`

	qUserUsernameTaken = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1);`

	qUserTouchLastLogin = `UPDATE users SET last_login = now() WHERE id = $1;`

	qUserSetVerified = `
UPDATE users
SET verified = TRUE, updated_at = now()
WHERE id = $1
RETURNING ` + userColumns + `;`

	qUserUpdatePassword = `
UPDATE users
SET password_hash = $2, updated_at = now()
WHERE id = $1;`
)

func (r *UserRepo) Create(ctx context.Context, u *user.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	err := eq.QueryRow(ctx, qUserInsert, u.ID, u.Email, u.Username, u.PasswordHash).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if pgErrCode(err) == pgUniqueViolation {
			// The constraint name tells which field lost the race.
			if strings.Contains(pgConstraint(err), "username") {
				return ErrUsernameConflict
			}
			return ErrEmailConflict
		}
		return fmt.Errorf("user insert: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	return scanUser(eq.QueryRow(ctx, qUserByID, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	return scanUser(eq.QueryRow(ctx, qUserByEmail, email))
}

func (r *UserRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var taken bool
	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qUserEmailTaken, email).Scan(&taken); err != nil {
		return false, fmt.Errorf("email taken: %w", err)
	}
	return taken, nil
}

func (r *UserRepo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var taken bool
	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qUserUsernameTaken, username).Scan(&taken); err != nil {
		return false, fmt.Errorf("username taken: %w", err)
	}
	return taken, nil
}

func (r *UserRepo) TouchLastLogin(ctx context.Context, id string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if _, err := eq.Exec(ctx, qUserTouchLastLogin, id); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

func (r *UserRepo) SetVerified(ctx context.Context, id string) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	return scanUser(eq.QueryRow(ctx, qUserSetVerified, id))
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	tag, err := eq.Exec(ctx, qUserUpdatePassword, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash,
		&u.ProfileImage, &u.Bio, &u.Verified, &u.IsActive,
		&u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
