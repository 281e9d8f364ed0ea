package main

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	config "github.com/soslanov/authd/internal/config/authd"
	"github.com/soslanov/authd/internal/services/authd/auth"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, uc *auth.Usecase) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	ctrl := auth.NewController(logger, uc, auth.CookieConfig{
		AccessTTL: cfg.Token.AccessTTL,
		Secure:    cfg.Server.CookieSecure,
	})
	ctrl.Register(e.Group("/api/v1"))

	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout
	return e
}

func serveHTTP(e *echo.Echo, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
	return e.Start(cfg.Server.HTTPAddr)
}
