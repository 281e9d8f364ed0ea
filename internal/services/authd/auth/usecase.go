// Package auth orchestrates the account lifecycle: sign-up with email
// verification, credential sign-in, refresh-token rotation, sign-out with
// access-token revocation, and the password reset flow. Every multi-step
// mutation runs inside one database transaction.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soslanov/authd/internal/domain/outbox"
	"github.com/soslanov/authd/internal/domain/session"
	"github.com/soslanov/authd/internal/domain/user"
	"github.com/soslanov/authd/internal/domain/verification"
	"github.com/soslanov/authd/internal/repository/postgres"
	"github.com/soslanov/authd/internal/token"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already in use")
	ErrUsernameTaken      = errors.New("username already in use")
	ErrUserNotFound       = errors.New("user not found")
	ErrCodeInvalid        = errors.New("verification code invalid or expired")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrStoreUnavailable   = errors.New("revocation store unavailable")
)

// Revoker is the slice of the revocation store the orchestrator needs.
type Revoker interface {
	Blacklist(ctx context.Context, tok string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, tok string) (bool, error)
	SetActiveRefresh(ctx context.Context, userID, tok string, ttl time.Duration) error
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type Config struct {
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	RotationWindow  time.Duration `mapstructure:"rotation_window"`
	EmailCodeTTL    time.Duration `mapstructure:"email_code_ttl"`
	ResetCodeTTL    time.Duration `mapstructure:"reset_code_ttl"`
	ResetRateWindow time.Duration `mapstructure:"reset_rate_window"`
	ResetRateMax    int           `mapstructure:"reset_rate_max"`

	RequireVerifiedSignIn bool `mapstructure:"require_verified_sign_in"`
	RevocationFailOpen    bool `mapstructure:"revocation_fail_open"`
	TrackActiveRefresh    bool `mapstructure:"track_active_refresh"`

	FrontendURL string `mapstructure:"frontend_url"`
}

type Deps struct {
	Log      *zap.Logger
	Tx       postgres.Transactor
	Users    user.Repo
	Sessions session.Repo
	Codes    verification.Repo
	Outbox   outbox.Repository
	Codec    *token.Codec
	Hasher   Hasher
	Mail     EmailSender
	Revoker  Revoker
	Now      func() time.Time
}

type Usecase struct {
	log      *zap.Logger
	cfg      Config
	tx       postgres.Transactor
	users    user.Repo
	sessions session.Repo
	codes    verification.Repo
	outbox   outbox.Repository
	codec    *token.Codec
	hasher   Hasher
	mail     EmailSender
	revoker  Revoker
	now      func() time.Time
}

func NewUsecase(cfg Config, d Deps) *Usecase {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Usecase{
		log:      d.Log.With(zap.String("component", "auth.usecase")),
		cfg:      cfg,
		tx:       d.Tx,
		users:    d.Users,
		sessions: d.Sessions,
		codes:    d.Codes,
		outbox:   d.Outbox,
		codec:    d.Codec,
		hasher:   d.Hasher,
		mail:     d.Mail,
		revoker:  d.Revoker,
		now:      now,
	}
}

type SignUpInput struct {
	Email    string
	Username string
	Password string
}

// SignUp creates the account and emails a verification code. The row insert
// and the email send share one transaction, so a failed send leaves no
// half-registered user behind.
func (u *Usecase) SignUp(ctx context.Context, in SignUpInput) (*user.User, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		taken, err := u.users.EmailTaken(gctx, in.Email)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken {
			return ErrEmailTaken
		}
		return nil
	})
	g.Go(func() error {
		taken, err := u.users.UsernameTaken(gctx, in.Username)
		if err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if taken {
			return ErrUsernameTaken
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hash, err := u.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	newUser := &user.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		IsActive:     true,
	}

	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.users.Create(ctx, newUser); err != nil {
			// The pre-checks raced a concurrent sign-up; the unique
			// constraint is the backstop.
			switch {
			case errors.Is(err, postgres.ErrEmailConflict):
				return ErrEmailTaken
			case errors.Is(err, postgres.ErrUsernameConflict):
				return ErrUsernameTaken
			}
			return fmt.Errorf("create user: %w", err)
		}

		code, err := u.codes.Issue(ctx, newUser.ID, verification.KindEmailVerification, u.cfg.EmailCodeTTL)
		if err != nil {
			return fmt.Errorf("issue verification code: %w", err)
		}

		subject, body := verifyEmailMessage(u.cfg.FrontendURL, code.ID)
		if _, err := u.mail.Send(ctx, newUser.Email, subject, body); err != nil {
			return fmt.Errorf("send verification email: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.log.Info("user signed up", zap.String("user_id", newUser.ID))
	return newUser, nil
}

type SignInInput struct {
	Email     string
	Password  string
	UserAgent string
}

type Tokens struct {
	Access     string
	Refresh    string
	RefreshTTL time.Duration
}

// SignIn verifies credentials and opens a session. Unknown email and wrong
// password produce the same error.
func (u *Usecase) SignIn(ctx context.Context, in SignInInput) (*user.User, Tokens, error) {
	usr, err := u.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, Tokens{}, ErrInvalidCredentials
		}
		return nil, Tokens{}, fmt.Errorf("get user: %w", err)
	}
	if err := u.hasher.Compare(usr.PasswordHash, in.Password); err != nil {
		return nil, Tokens{}, ErrInvalidCredentials
	}
	if u.cfg.RequireVerifiedSignIn && !usr.Verified {
		return nil, Tokens{}, ErrEmailNotVerified
	}

	now := u.now()
	sess := &session.Session{
		ID:        uuid.NewString(),
		UserID:    usr.ID,
		UserAgent: in.UserAgent,
		ExpiresAt: now.Add(u.cfg.SessionTTL),
	}
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.sessions.Create(ctx, sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		if err := u.users.TouchLastLogin(ctx, usr.ID); err != nil {
			return fmt.Errorf("touch last login: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, Tokens{}, err
	}

	toks, err := u.issueTokens(usr.ID, sess.ID)
	if err != nil {
		return nil, Tokens{}, err
	}

	if u.cfg.TrackActiveRefresh {
		if err := u.revoker.SetActiveRefresh(ctx, usr.ID, toks.Refresh, u.cfg.SessionTTL); err != nil {
			u.log.Warn("set active refresh", zap.Error(err))
		}
	}

	u.log.Info("user signed in",
		zap.String("user_id", usr.ID), zap.String("session_id", sess.ID))
	return usr, toks, nil
}

// SignOut revokes the access token for its remaining lifetime and deletes
// the session. An undecodable token still succeeds: the caller clears
// cookies regardless, and there is nothing left to revoke.
func (u *Usecase) SignOut(ctx context.Context, accessToken string) error {
	payload, err := u.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil
	}

	if err := u.revoker.Blacklist(ctx, accessToken, payload.ExpiresAt.Sub(u.now())); err != nil {
		// Session deletion below still kills the refresh path; the token
		// dies on its own within the access TTL.
		u.log.Warn("blacklist on sign-out", zap.Error(err))
	}

	if err := u.sessions.Delete(ctx, payload.SessionID); err != nil && !errors.Is(err, postgres.ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}

	u.log.Info("user signed out",
		zap.String("user_id", payload.UserID), zap.String("session_id", payload.SessionID))
	return nil
}

type RefreshResult struct {
	UserID  string
	Tokens  Tokens
	Rotated bool
}

// Refresh exchanges a valid refresh token for a new access token. When the
// session is within the rotation window of expiry it is extended and a new
// refresh token issued; otherwise the old refresh token stays valid.
func (u *Usecase) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	payload, err := u.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return RefreshResult{}, ErrUnauthorized
	}

	sess, err := u.sessions.GetByID(ctx, payload.SessionID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return RefreshResult{}, ErrUnauthorized
		}
		return RefreshResult{}, fmt.Errorf("get session: %w", err)
	}

	now := u.now()
	if sess.Expired(now) {
		if err := u.sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, postgres.ErrNotFound) {
			u.log.Warn("delete expired session", zap.Error(err))
		}
		return RefreshResult{}, ErrUnauthorized
	}

	rotated := sess.ExpiresAt.Sub(now) < u.cfg.RotationWindow
	if rotated {
		newExpiry := now.Add(u.cfg.SessionTTL)
		if err := u.sessions.Extend(ctx, sess.ID, newExpiry); err != nil {
			if errors.Is(err, postgres.ErrNotFound) {
				// Deleted between the read and the extend; treat as revoked.
				return RefreshResult{}, ErrUnauthorized
			}
			return RefreshResult{}, fmt.Errorf("extend session: %w", err)
		}
		sess.ExpiresAt = newExpiry
	}

	access, err := u.codec.IssueAccess(sess.UserID, sess.ID)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("issue access token: %w", err)
	}
	res := RefreshResult{
		UserID:  sess.UserID,
		Rotated: rotated,
		Tokens:  Tokens{Access: access, RefreshTTL: sess.ExpiresAt.Sub(now)},
	}
	if rotated {
		refresh, err := u.codec.IssueRefresh(sess.ID)
		if err != nil {
			return RefreshResult{}, fmt.Errorf("issue refresh token: %w", err)
		}
		res.Tokens.Refresh = refresh
		if u.cfg.TrackActiveRefresh {
			if err := u.revoker.SetActiveRefresh(ctx, sess.UserID, refresh, u.cfg.SessionTTL); err != nil {
				u.log.Warn("set active refresh", zap.Error(err))
			}
		}
	}
	return res, nil
}

// VerifyEmail redeems an email-verification code and marks the account
// verified. The code is single-use: concurrent redemptions resolve to one
// winner, the rest get ErrCodeInvalid.
func (u *Usecase) VerifyEmail(ctx context.Context, code string) (*user.User, error) {
	var verified *user.User
	err := u.tx.WithTx(ctx, func(ctx context.Context) error {
		userID, err := u.codes.Consume(ctx, code, verification.KindEmailVerification)
		if err != nil {
			if errors.Is(err, postgres.ErrNotFound) {
				return ErrCodeInvalid
			}
			return fmt.Errorf("consume code: %w", err)
		}
		verified, err = u.users.SetVerified(ctx, userID)
		if err != nil {
			return fmt.Errorf("set verified: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info("email verified", zap.String("user_id", verified.ID))
	return verified, nil
}

// ForgotPassword issues a reset code and emails it, rate limited per user.
func (u *Usecase) ForgotPassword(ctx context.Context, email string) error {
	usr, err := u.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}

	recent, err := u.codes.CountRecent(ctx, usr.ID, verification.KindPasswordReset, u.cfg.ResetRateWindow)
	if err != nil {
		return fmt.Errorf("count recent codes: %w", err)
	}
	if recent > u.cfg.ResetRateMax {
		return ErrTooManyRequests
	}

	return u.tx.WithTx(ctx, func(ctx context.Context) error {
		code, err := u.codes.Issue(ctx, usr.ID, verification.KindPasswordReset, u.cfg.ResetCodeTTL)
		if err != nil {
			return fmt.Errorf("issue reset code: %w", err)
		}
		subject, body := resetPasswordMessage(u.cfg.FrontendURL, code.ID, u.cfg.ResetCodeTTL)
		if _, err := u.mail.Send(ctx, usr.Email, subject, body); err != nil {
			return fmt.Errorf("send reset email: %w", err)
		}
		return nil
	})
}

// ResetPassword redeems a reset code, replaces the password hash and kills
// every session of the user in the same transaction. A password-changed
// event is enqueued for the notifier.
func (u *Usecase) ResetPassword(ctx context.Context, code, newPassword string) error {
	hash, err := u.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var userID string
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		userID, err = u.codes.Consume(ctx, code, verification.KindPasswordReset)
		if err != nil {
			if errors.Is(err, postgres.ErrNotFound) {
				return ErrCodeInvalid
			}
			return fmt.Errorf("consume code: %w", err)
		}
		if err := u.users.UpdatePassword(ctx, userID, hash); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if err := u.sessions.DeleteAllForUser(ctx, userID); err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		if err := enqueuePasswordChanged(ctx, u.outbox, userID, u.now()); err != nil {
			return fmt.Errorf("enqueue password-changed: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	u.log.Info("password reset", zap.String("user_id", userID))
	return nil
}

// Identity is what the middleware threads through a request once the access
// token checks out.
type Identity struct {
	UserID    string
	SessionID string
}

// Authenticate validates an access token: blacklist first (keyed by the raw
// token), then signature and expiry. A blacklist outage rejects the request
// unless fail-open is configured.
func (u *Usecase) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	revoked, err := u.revoker.IsBlacklisted(ctx, accessToken)
	if err != nil {
		if !u.cfg.RevocationFailOpen {
			u.log.Error("blacklist check", zap.Error(err))
			return Identity{}, ErrStoreUnavailable
		}
		u.log.Warn("blacklist check failed, continuing open", zap.Error(err))
	} else if revoked {
		return Identity{}, ErrUnauthorized
	}

	payload, err := u.codec.VerifyAccess(accessToken)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UserID: payload.UserID, SessionID: payload.SessionID}, nil
}

func (u *Usecase) CurrentUser(ctx context.Context, userID string) (*user.User, error) {
	usr, err := u.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return usr, nil
}

func (u *Usecase) CheckEmail(ctx context.Context, email string) error {
	taken, err := u.users.EmailTaken(ctx, email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		return ErrEmailTaken
	}
	return nil
}

func (u *Usecase) CheckUsername(ctx context.Context, username string) error {
	taken, err := u.users.UsernameTaken(ctx, username)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if taken {
		return ErrUsernameTaken
	}
	return nil
}

func (u *Usecase) issueTokens(userID, sessionID string) (Tokens, error) {
	access, err := u.codec.IssueAccess(userID, sessionID)
	if err != nil {
		return Tokens{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := u.codec.IssueRefresh(sessionID)
	if err != nil {
		return Tokens{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return Tokens{Access: access, Refresh: refresh, RefreshTTL: u.cfg.SessionTTL}, nil
}
