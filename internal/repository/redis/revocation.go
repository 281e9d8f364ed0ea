// Package redis holds the revocation store: an ephemeral key-value cache
// that blacklists access tokens for their remaining lifetime and, when
// configured, tracks the active refresh token per user. It is best-effort
// by contract — the sessions table stays the source of truth.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	blacklistPrefix     = "bl_"
	activeRefreshPrefix = "refresh_"
)

type Config struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	OpTimeout   time.Duration `mapstructure:"op_timeout"`
}

type Client struct {
	rdb *goredis.Client
	log *zap.Logger
}

func New(ctx context.Context, cfg Config, log *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{
		rdb: rdb,
		log: log.With(zap.String("component", "redis.revocation")),
	}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Blacklist marks an access token revoked for its remaining lifetime.
// A non-positive ttl means the token has already expired; nothing to do.
func (c *Client) Blacklist(ctx context.Context, tok string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.rdb.Set(ctx, blacklistPrefix+tok, "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist set: %w", err)
	}
	return nil
}

func (c *Client) IsBlacklisted(ctx context.Context, tok string) (bool, error) {
	err := c.rdb.Get(ctx, blacklistPrefix+tok).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, goredis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("blacklist get: %w", err)
	}
}

// SetActiveRefresh records the latest refresh token for a user. Purely a
// write-through hint for deployments that want it; never consulted to
// decide validity.
func (c *Client) SetActiveRefresh(ctx context.Context, userID, tok string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.rdb.Set(ctx, activeRefreshPrefix+userID, tok, ttl).Err(); err != nil {
		return fmt.Errorf("active refresh set: %w", err)
	}
	return nil
}

func (c *Client) ActiveRefresh(ctx context.Context, userID string) (string, error) {
	val, err := c.rdb.Get(ctx, activeRefreshPrefix+userID).Result()
	switch {
	case err == nil:
		return val, nil
	case errors.Is(err, goredis.Nil):
		return "", nil
	default:
		return "", fmt.Errorf("active refresh get: %w", err)
	}
}
