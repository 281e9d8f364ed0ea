package main

import (
	"context"

	config "github.com/soslanov/authd/internal/config/authd"
	pg "github.com/soslanov/authd/internal/repository/postgres"
)

func initDB(ctx context.Context, cfg *config.Config) (*pg.DB, error) {
	return pg.New(ctx, cfg.DB)
}
