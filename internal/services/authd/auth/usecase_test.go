package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/soslanov/authd/internal/domain/outbox"
	"github.com/soslanov/authd/internal/domain/session"
	"github.com/soslanov/authd/internal/domain/user"
	"github.com/soslanov/authd/internal/domain/verification"
	"github.com/soslanov/authd/internal/repository/postgres"
	"github.com/soslanov/authd/internal/token"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type nopTx struct{}

func (nopTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeUsers struct {
	mu   sync.Mutex
	byID map[string]*user.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[string]*user.User{}} }

func (f *fakeUsers) Create(_ context.Context, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ex := range f.byID {
		if ex.Email == u.Email {
			return postgres.ErrEmailConflict
		}
		if ex.Username == u.Username {
			return postgres.ErrUsernameConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (f *fakeUsers) EmailTaken(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) UsernameTaken(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) TouchLastLogin(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return postgres.ErrNotFound
	}
	now := time.Now().UTC()
	u.LastLogin = &now
	return nil
}

func (f *fakeUsers) SetVerified(_ context.Context, id string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	u.Verified = true
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return postgres.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type fakeSessions struct {
	mu   sync.Mutex
	byID map[string]*session.Session
}

func newFakeSessions() *fakeSessions { return &fakeSessions{byID: map[string]*session.Session{}} }

func (f *fakeSessions) Create(_ context.Context, s *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	cp := *s
	f.byID[s.ID] = &cp
	return nil
}

func (f *fakeSessions) GetByID(_ context.Context, id string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) Extend(_ context.Context, id string, newExpiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return postgres.ErrNotFound
	}
	s.ExpiresAt = newExpiry
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return postgres.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeSessions) DeleteAllForUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.byID {
		if s.UserID == userID {
			delete(f.byID, id)
		}
	}
	return nil
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

type fakeCodes struct {
	mu   sync.Mutex
	now  func() time.Time
	byID map[string]*verification.Code
}

func newFakeCodes(now func() time.Time) *fakeCodes {
	return &fakeCodes{now: now, byID: map[string]*verification.Code{}}
}

func (f *fakeCodes) Issue(_ context.Context, userID string, kind verification.Kind, ttl time.Duration) (*verification.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &verification.Code{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		CreatedAt: f.now(),
		ExpiresAt: f.now().Add(ttl),
	}
	f.byID[c.ID] = c
	cp := *c
	return &cp, nil
}

func (f *fakeCodes) Consume(_ context.Context, id string, kind verification.Kind) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok || c.Kind != kind || !c.ExpiresAt.After(f.now()) {
		return "", postgres.ErrNotFound
	}
	delete(f.byID, id)
	return c.UserID, nil
}

func (f *fakeCodes) CountRecent(_ context.Context, userID string, kind verification.Kind, window time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	since := f.now().Add(-window)
	n := 0
	for _, c := range f.byID {
		if c.UserID == userID && c.Kind == kind && c.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

type fakeOutbox struct {
	mu       sync.Mutex
	enqueued []outbox.Message
}

func (f *fakeOutbox) Enqueue(_ context.Context, key string, kind outbox.Kind, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, outbox.Message{IdempotencyKey: key, Kind: kind, Data: data})
	return nil
}

func (f *fakeOutbox) PickBatch(context.Context, int, time.Duration) ([]outbox.Message, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkSuccess(context.Context, []string) error { return nil }

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeMail struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMail) Send(_ context.Context, to, subject, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return uuid.NewString(), nil
}

type fakeRevoker struct {
	mu        sync.Mutex
	blacklist map[string]time.Duration
	active    map[string]string
	err       error
}

func newFakeRevoker() *fakeRevoker {
	return &fakeRevoker{blacklist: map[string]time.Duration{}, active: map[string]string{}}
}

func (f *fakeRevoker) Blacklist(_ context.Context, tok string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if ttl > 0 {
		f.blacklist[tok] = ttl
	}
	return nil
}

func (f *fakeRevoker) IsBlacklisted(_ context.Context, tok string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.blacklist[tok]
	return ok, nil
}

func (f *fakeRevoker) SetActiveRefresh(_ context.Context, userID, tok string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.active[userID] = tok
	return nil
}

type env struct {
	uc       *Usecase
	clock    *testClock
	users    *fakeUsers
	sessions *fakeSessions
	codes    *fakeCodes
	outbox   *fakeOutbox
	mail     *fakeMail
	revoker  *fakeRevoker
	codec    *token.Codec
}

func newEnv(t *testing.T, mutate func(*Config)) *env {
	t.Helper()
	clock := newTestClock()

	cfg := Config{
		SessionTTL:      7 * 24 * time.Hour,
		RotationWindow:  24 * time.Hour,
		EmailCodeTTL:    10 * time.Minute,
		ResetCodeTTL:    time.Hour,
		ResetRateWindow: 5 * time.Minute,
		ResetRateMax:    1,
		FrontendURL:     "https://app.example.com",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    cfg.SessionTTL,
		Now:           clock.Now,
	})
	require.NoError(t, err)

	e := &env{
		clock:    clock,
		users:    newFakeUsers(),
		sessions: newFakeSessions(),
		codes:    newFakeCodes(clock.Now),
		outbox:   &fakeOutbox{},
		mail:     &fakeMail{},
		revoker:  newFakeRevoker(),
		codec:    codec,
	}
	e.uc = NewUsecase(cfg, Deps{
		Log:      zap.NewNop(),
		Tx:       nopTx{},
		Users:    e.users,
		Sessions: e.sessions,
		Codes:    e.codes,
		Outbox:   e.outbox,
		Codec:    codec,
		Hasher:   NewBcryptHasher(bcrypt.MinCost),
		Mail:     e.mail,
		Revoker:  e.revoker,
		Now:      clock.Now,
	})
	return e
}

func (e *env) signUp(t *testing.T, email, username string) *user.User {
	t.Helper()
	u, err := e.uc.SignUp(context.Background(), SignUpInput{
		Email: email, Username: username, Password: "correct horse",
	})
	require.NoError(t, err)
	return u
}

func TestSignUp(t *testing.T) {
	t.Run("creates user and sends verification email", func(t *testing.T) {
		e := newEnv(t, nil)
		u := e.signUp(t, "ada@example.com", "ada")

		require.NotEmpty(t, u.ID)
		assert.False(t, u.Verified)
		require.Len(t, e.mail.sent, 1)
		assert.Equal(t, "ada@example.com", e.mail.sent[0].To)
		assert.Contains(t, e.mail.sent[0].Body, "https://app.example.com/verify-email/")
	})

	t.Run("rejects taken email", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")

		_, err := e.uc.SignUp(context.Background(), SignUpInput{
			Email: "ada@example.com", Username: "other", Password: "correct horse",
		})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("rejects taken username", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")

		_, err := e.uc.SignUp(context.Background(), SignUpInput{
			Email: "ada2@example.com", Username: "ada", Password: "correct horse",
		})
		assert.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("mail failure aborts the flow", func(t *testing.T) {
		e := newEnv(t, nil)
		e.mail.err = errors.New("smtp down")

		_, err := e.uc.SignUp(context.Background(), SignUpInput{
			Email: "ada@example.com", Username: "ada", Password: "correct horse",
		})
		require.Error(t, err)
	})
}

func TestSignIn(t *testing.T) {
	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")

		_, _, errUnknown := e.uc.SignIn(context.Background(), SignInInput{
			Email: "nobody@example.com", Password: "whatever",
		})
		_, _, errWrongPw := e.uc.SignIn(context.Background(), SignInInput{
			Email: "ada@example.com", Password: "wrong",
		})
		assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
		assert.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
	})

	t.Run("opens a session and issues both tokens", func(t *testing.T) {
		e := newEnv(t, nil)
		created := e.signUp(t, "ada@example.com", "ada")

		usr, toks, err := e.uc.SignIn(context.Background(), SignInInput{
			Email: "ada@example.com", Password: "correct horse", UserAgent: "test-agent",
		})
		require.NoError(t, err)
		assert.Equal(t, created.ID, usr.ID)

		ap, err := e.codec.VerifyAccess(toks.Access)
		require.NoError(t, err)
		assert.Equal(t, usr.ID, ap.UserID)

		rp, err := e.codec.VerifyRefresh(toks.Refresh)
		require.NoError(t, err)

		sess, err := e.sessions.GetByID(context.Background(), rp.SessionID)
		require.NoError(t, err)
		assert.Equal(t, usr.ID, sess.UserID)
		assert.Equal(t, "test-agent", sess.UserAgent)
		assert.Equal(t, e.clock.Now().Add(7*24*time.Hour), sess.ExpiresAt)

		stored, err := e.users.GetByID(context.Background(), usr.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored.LastLogin)
	})

	t.Run("unverified account blocked when required", func(t *testing.T) {
		e := newEnv(t, func(c *Config) { c.RequireVerifiedSignIn = true })
		e.signUp(t, "ada@example.com", "ada")

		_, _, err := e.uc.SignIn(context.Background(), SignInInput{
			Email: "ada@example.com", Password: "correct horse",
		})
		assert.ErrorIs(t, err, ErrEmailNotVerified)
	})

	t.Run("unverified account allowed by default", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")

		_, _, err := e.uc.SignIn(context.Background(), SignInInput{
			Email: "ada@example.com", Password: "correct horse",
		})
		assert.NoError(t, err)
	})

	t.Run("records active refresh pointer when tracking", func(t *testing.T) {
		e := newEnv(t, func(c *Config) { c.TrackActiveRefresh = true })
		u := e.signUp(t, "ada@example.com", "ada")

		_, toks, err := e.uc.SignIn(context.Background(), SignInInput{
			Email: "ada@example.com", Password: "correct horse",
		})
		require.NoError(t, err)
		assert.Equal(t, toks.Refresh, e.revoker.active[u.ID])
	})
}

func signInFor(t *testing.T, e *env, email string) Tokens {
	t.Helper()
	_, toks, err := e.uc.SignIn(context.Background(), SignInInput{
		Email: email, Password: "correct horse",
	})
	require.NoError(t, err)
	return toks
}

func TestRefresh(t *testing.T) {
	t.Run("fresh session is not rotated", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")
		toks := signInFor(t, e, "ada@example.com")

		e.clock.Advance(time.Hour)
		res, err := e.uc.Refresh(context.Background(), toks.Refresh)
		require.NoError(t, err)
		assert.False(t, res.Rotated)
		assert.Empty(t, res.Tokens.Refresh)

		_, err = e.codec.VerifyAccess(res.Tokens.Access)
		assert.NoError(t, err)
	})

	t.Run("session inside the rotation window is extended", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")
		toks := signInFor(t, e, "ada@example.com")
		rp, err := e.codec.VerifyRefresh(toks.Refresh)
		require.NoError(t, err)

		// 6d13h in: less than 24h of session lifetime left.
		e.clock.Advance(6*24*time.Hour + 13*time.Hour)
		res, err := e.uc.Refresh(context.Background(), toks.Refresh)
		require.NoError(t, err)
		assert.True(t, res.Rotated)
		require.NotEmpty(t, res.Tokens.Refresh)

		sess, err := e.sessions.GetByID(context.Background(), rp.SessionID)
		require.NoError(t, err)
		assert.Equal(t, e.clock.Now().Add(7*24*time.Hour), sess.ExpiresAt)

		rp2, err := e.codec.VerifyRefresh(res.Tokens.Refresh)
		require.NoError(t, err)
		assert.Equal(t, rp.SessionID, rp2.SessionID)
	})

	t.Run("expired session is rejected and deleted", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")
		toks := signInFor(t, e, "ada@example.com")

		// Past the session expiry but within the refresh JWT lifetime is
		// impossible here, so expire the row directly.
		rp, err := e.codec.VerifyRefresh(toks.Refresh)
		require.NoError(t, err)
		require.NoError(t, e.sessions.Extend(context.Background(), rp.SessionID, e.clock.Now().Add(-time.Minute)))

		_, err = e.uc.Refresh(context.Background(), toks.Refresh)
		assert.ErrorIs(t, err, ErrUnauthorized)
		_, err = e.sessions.GetByID(context.Background(), rp.SessionID)
		assert.ErrorIs(t, err, postgres.ErrNotFound)
	})

	t.Run("deleted session is rejected", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")
		toks := signInFor(t, e, "ada@example.com")
		rp, err := e.codec.VerifyRefresh(toks.Refresh)
		require.NoError(t, err)
		require.NoError(t, e.sessions.Delete(context.Background(), rp.SessionID))

		_, err = e.uc.Refresh(context.Background(), toks.Refresh)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		e := newEnv(t, nil)
		_, err := e.uc.Refresh(context.Background(), "not-a-jwt")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("access token is not accepted as refresh", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")
		toks := signInFor(t, e, "ada@example.com")

		_, err := e.uc.Refresh(context.Background(), toks.Access)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestSignOut(t *testing.T) {
	t.Run("blacklists token and deletes session", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")
		toks := signInFor(t, e, "ada@example.com")

		require.NoError(t, e.uc.SignOut(context.Background(), toks.Access))
		assert.Equal(t, 0, e.sessions.count())

		ttl, ok := e.revoker.blacklist[toks.Access]
		require.True(t, ok)
		assert.Equal(t, 15*time.Minute, ttl)
	})

	t.Run("undecodable token is a no-op success", func(t *testing.T) {
		e := newEnv(t, nil)
		assert.NoError(t, e.uc.SignOut(context.Background(), "garbage"))
	})

	t.Run("blacklist outage still deletes the session", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")
		toks := signInFor(t, e, "ada@example.com")

		e.revoker.err = errors.New("redis down")
		assert.NoError(t, e.uc.SignOut(context.Background(), toks.Access))
		assert.Equal(t, 0, e.sessions.count())
	})
}

func TestVerifyEmail(t *testing.T) {
	codeFromMail := func(t *testing.T, e *env) string {
		t.Helper()
		require.NotEmpty(t, e.mail.sent)
		body := e.mail.sent[len(e.mail.sent)-1].Body
		// The code is the UUID path segment of the only link in the body.
		const marker = "/verify-email/"
		idx := strings.Index(body, marker)
		require.GreaterOrEqual(t, idx, 0)
		rest := body[idx+len(marker):]
		if fields := strings.Fields(rest); len(fields) > 0 {
			return fields[0]
		}
		return rest
	}

	t.Run("marks the account verified", func(t *testing.T) {
		e := newEnv(t, nil)
		u := e.signUp(t, "ada@example.com", "ada")
		code := codeFromMail(t, e)

		verified, err := e.uc.VerifyEmail(context.Background(), code)
		require.NoError(t, err)
		assert.Equal(t, u.ID, verified.ID)
		assert.True(t, verified.Verified)
	})

	t.Run("code is single use", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")
		code := codeFromMail(t, e)

		_, err := e.uc.VerifyEmail(context.Background(), code)
		require.NoError(t, err)
		_, err = e.uc.VerifyEmail(context.Background(), code)
		assert.ErrorIs(t, err, ErrCodeInvalid)
	})

	t.Run("expired code is rejected", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")
		code := codeFromMail(t, e)

		e.clock.Advance(11 * time.Minute)
		_, err := e.uc.VerifyEmail(context.Background(), code)
		assert.ErrorIs(t, err, ErrCodeInvalid)
	})

	t.Run("unknown code is rejected", func(t *testing.T) {
		e := newEnv(t, nil)
		_, err := e.uc.VerifyEmail(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, ErrCodeInvalid)
	})
}

func TestForgotPassword(t *testing.T) {
	t.Run("issues a reset code and emails it", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")

		require.NoError(t, e.uc.ForgotPassword(context.Background(), "ada@example.com"))
		last := e.mail.sent[len(e.mail.sent)-1]
		assert.Equal(t, "ada@example.com", last.To)
		assert.Contains(t, last.Body, "https://app.example.com/reset-password/")
	})

	t.Run("unknown email is 404 territory", func(t *testing.T) {
		e := newEnv(t, nil)
		err := e.uc.ForgotPassword(context.Background(), "nobody@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("rate limited inside the window", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")

		require.NoError(t, e.uc.ForgotPassword(context.Background(), "ada@example.com"))
		require.NoError(t, e.uc.ForgotPassword(context.Background(), "ada@example.com"))
		err := e.uc.ForgotPassword(context.Background(), "ada@example.com")
		assert.ErrorIs(t, err, ErrTooManyRequests)

		e.clock.Advance(6 * time.Minute)
		assert.NoError(t, e.uc.ForgotPassword(context.Background(), "ada@example.com"))
	})
}

func TestResetPassword(t *testing.T) {
	issueReset := func(t *testing.T, e *env, userID string) string {
		t.Helper()
		code, err := e.codes.Issue(context.Background(), userID, verification.KindPasswordReset, time.Hour)
		require.NoError(t, err)
		return code.ID
	}

	t.Run("replaces password and kills all sessions", func(t *testing.T) {
		e := newEnv(t, nil)
		u := e.signUp(t, "ada@example.com", "ada")
		signInFor(t, e, "ada@example.com")
		signInFor(t, e, "ada@example.com")
		require.Equal(t, 2, e.sessions.count())

		code := issueReset(t, e, u.ID)
		require.NoError(t, e.uc.ResetPassword(context.Background(), code, "new password!"))

		assert.Equal(t, 0, e.sessions.count())

		_, _, err := e.uc.SignIn(context.Background(), SignInInput{
			Email: "ada@example.com", Password: "correct horse",
		})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		_, _, err = e.uc.SignIn(context.Background(), SignInInput{
			Email: "ada@example.com", Password: "new password!",
		})
		assert.NoError(t, err)
	})

	t.Run("enqueues a password-changed event", func(t *testing.T) {
		e := newEnv(t, nil)
		u := e.signUp(t, "ada@example.com", "ada")
		code := issueReset(t, e, u.ID)

		require.NoError(t, e.uc.ResetPassword(context.Background(), code, "new password!"))
		require.Len(t, e.outbox.enqueued, 1)
		assert.Equal(t, outbox.KindPasswordChanged, e.outbox.enqueued[0].Kind)
		assert.Contains(t, string(e.outbox.enqueued[0].Data), u.ID)
	})

	t.Run("reset code is single use", func(t *testing.T) {
		e := newEnv(t, nil)
		u := e.signUp(t, "ada@example.com", "ada")
		code := issueReset(t, e, u.ID)

		require.NoError(t, e.uc.ResetPassword(context.Background(), code, "new password!"))
		err := e.uc.ResetPassword(context.Background(), code, "another password")
		assert.ErrorIs(t, err, ErrCodeInvalid)
	})

	t.Run("email code cannot reset a password", func(t *testing.T) {
		e := newEnv(t, nil)
		u := e.signUp(t, "ada@example.com", "ada")
		code, err := e.codes.Issue(context.Background(), u.ID, verification.KindEmailVerification, time.Hour)
		require.NoError(t, err)

		err = e.uc.ResetPassword(context.Background(), code.ID, "new password!")
		assert.ErrorIs(t, err, ErrCodeInvalid)
	})

	t.Run("concurrent redemptions have one winner", func(t *testing.T) {
		e := newEnv(t, nil)
		u := e.signUp(t, "ada@example.com", "ada")
		code := issueReset(t, e, u.ID)

		const n = 8
		errs := make(chan error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- e.uc.ResetPassword(context.Background(), code, "new password!")
			}()
		}
		wg.Wait()
		close(errs)

		won := 0
		for err := range errs {
			if err == nil {
				won++
			} else {
				assert.ErrorIs(t, err, ErrCodeInvalid)
			}
		}
		assert.Equal(t, 1, won)
	})
}

func TestAuthenticate(t *testing.T) {
	t.Run("valid token yields identity", func(t *testing.T) {
		e := newEnv(t, nil)
		u := e.signUp(t, "ada@example.com", "ada")
		toks := signInFor(t, e, "ada@example.com")

		id, err := e.uc.Authenticate(context.Background(), toks.Access)
		require.NoError(t, err)
		assert.Equal(t, u.ID, id.UserID)
		assert.NotEmpty(t, id.SessionID)
	})

	t.Run("blacklisted token is rejected", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")
		toks := signInFor(t, e, "ada@example.com")
		require.NoError(t, e.uc.SignOut(context.Background(), toks.Access))

		_, err := e.uc.Authenticate(context.Background(), toks.Access)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")
		toks := signInFor(t, e, "ada@example.com")

		e.clock.Advance(16 * time.Minute)
		_, err := e.uc.Authenticate(context.Background(), toks.Access)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("store outage rejects by default", func(t *testing.T) {
		e := newEnv(t, nil)
		e.signUp(t, "ada@example.com", "ada")
		toks := signInFor(t, e, "ada@example.com")

		e.revoker.err = errors.New("redis down")
		_, err := e.uc.Authenticate(context.Background(), toks.Access)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("store outage passes when fail-open", func(t *testing.T) {
		e := newEnv(t, func(c *Config) { c.RevocationFailOpen = true })
		u := e.signUp(t, "ada@example.com", "ada")
		toks := signInFor(t, e, "ada@example.com")

		e.revoker.err = errors.New("redis down")
		id, err := e.uc.Authenticate(context.Background(), toks.Access)
		require.NoError(t, err)
		assert.Equal(t, u.ID, id.UserID)
	})
}
