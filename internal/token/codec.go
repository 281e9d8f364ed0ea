package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures collapse to two cases so callers can pick wording
// without learning anything else about the token.
var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("invalid token")
)

const (
	typAccess  = "access"
	typRefresh = "refresh"

	audience = "user"
)

type AccessPayload struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

type RefreshPayload struct {
	SessionID string
	ExpiresAt time.Time
}

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Now           func() time.Time
}

// Codec signs and verifies both token kinds. Access and refresh use
// distinct secrets and a typ claim, so a token of one kind never verifies
// as the other.
type Codec struct {
	cfg Config
}

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "authd"
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Codec{cfg: cfg}, nil
}

type accessClaims struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Typ       string `json:"typ"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	SessionID string `json:"sessionId"`
	Typ       string `json:"typ"`
	jwt.RegisteredClaims
}

func (c *Codec) IssueAccess(userID, sessionID string) (string, error) {
	now := c.cfg.Now()
	claims := accessClaims{
		UserID:           userID,
		SessionID:        sessionID,
		Typ:              typAccess,
		RegisteredClaims: c.registered(now, c.cfg.AccessTTL),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.AccessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (c *Codec) IssueRefresh(sessionID string) (string, error) {
	now := c.cfg.Now()
	claims := refreshClaims{
		SessionID:        sessionID,
		Typ:              typRefresh,
		RegisteredClaims: c.registered(now, c.cfg.RefreshTTL),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.RefreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

func (c *Codec) VerifyAccess(raw string) (AccessPayload, error) {
	var claims accessClaims
	if err := c.parse(raw, &claims, c.cfg.AccessSecret); err != nil {
		return AccessPayload{}, err
	}
	if claims.Typ != typAccess || claims.UserID == "" || claims.SessionID == "" {
		return AccessPayload{}, ErrInvalid
	}
	return AccessPayload{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// VerifyRefresh deliberately yields only the session id: the user identity
// is re-derived from the session row, never trusted from the token.
func (c *Codec) VerifyRefresh(raw string) (RefreshPayload, error) {
	var claims refreshClaims
	if err := c.parse(raw, &claims, c.cfg.RefreshSecret); err != nil {
		return RefreshPayload{}, err
	}
	if claims.Typ != typRefresh || claims.SessionID == "" {
		return RefreshPayload{}, ErrInvalid
	}
	return RefreshPayload{
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (c *Codec) parse(raw string, into jwt.Claims, secret []byte) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithTimeFunc(c.cfg.Now),
		jwt.WithExpirationRequired(),
	)
	tok, err := parser.ParseWithClaims(raw, into, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	switch {
	case err == nil && tok.Valid:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrInvalid
	}
}

func (c *Codec) registered(now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    c.cfg.Issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}
