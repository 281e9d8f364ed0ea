package main

import (
	"context"

	"go.uber.org/zap"

	config "github.com/soslanov/authd/internal/config/authd"
	rd "github.com/soslanov/authd/internal/repository/redis"
)

func initRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*rd.Client, error) {
	return rd.New(ctx, cfg.Redis, logger)
}
