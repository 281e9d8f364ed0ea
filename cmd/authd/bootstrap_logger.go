package main

import (
	"go.uber.org/zap"

	config "github.com/soslanov/authd/internal/config/authd"
	"github.com/soslanov/authd/internal/obs"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg.AsLoggerConfig())
}
