package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "github.com/soslanov/authd/internal/config/authd"
	"github.com/soslanov/authd/internal/mail"
	"github.com/soslanov/authd/internal/obs"
	"github.com/soslanov/authd/internal/obs/retry"
	runner "github.com/soslanov/authd/internal/outbox"
	kafkax "github.com/soslanov/authd/internal/repository/kafka"
	pg "github.com/soslanov/authd/internal/repository/postgres"
	"github.com/soslanov/authd/internal/services/authd/auth"
	"github.com/soslanov/authd/internal/token"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/authd.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting authd",
		zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version))

	db, err := initDB(rootCtx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	logger.Info("db connected")

	revoker, err := initRedis(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer func() { _ = revoker.Close() }()
	logger.Info("redis connected")

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte(cfg.Token.AccessSecret),
		RefreshSecret: []byte(cfg.Token.RefreshSecret),
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Auth.SessionTTL,
		Issuer:        cfg.Token.Issuer,
	})
	if err != nil {
		logger.Fatal("token codec", zap.Error(err))
	}

	outboxRepo := pg.NewOutboxRepo(db)
	uc := auth.NewUsecase(cfg.Auth, auth.Deps{
		Log:      logger,
		Tx:       pg.NewTransactor(db, logger),
		Users:    pg.NewUserRepo(db),
		Sessions: pg.NewSessionRepo(db),
		Codes:    pg.NewVerificationRepo(db),
		Outbox:   outboxRepo,
		Codec:    codec,
		Hasher:   auth.NewBcryptHasher(0),
		Mail:     mail.New(cfg.SMTP).WithLogger(logger),
		Revoker:  revoker,
	})

	events := kafkax.NewSecurityEvents(cfg.KafkaOut.Brokers, cfg.KafkaOut.Topic).WithLogger(logger)
	defer func() { _ = events.Close() }()

	dispatch := runner.MakeGlobalHandler(events, retry.Policy{
		Attempts: cfg.Outbox.RetryAttempts,
		Backoff:  retry.ExpoJitter{Base: cfg.Outbox.RetryBase, Max: cfg.Outbox.RetryMax, Jitter: 0.2},
	})
	runner.NewRunner(logger, outboxRepo, dispatch,
		cfg.Outbox.Workers, cfg.Outbox.BatchSize, cfg.Outbox.WaitTime, cfg.Outbox.InProgressTTL,
	).Start(rootCtx)

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		if err := db.Pool.Ping(ctx); err != nil {
			return err
		}
		return revoker.Ping(ctx)
	}, logger)

	httpSrv := buildHTTPServer(cfg, logger, uc)
	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- serveHTTP(httpSrv, cfg, logger) }()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal")
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shCtx)
	_ = ms.Shutdown(shCtx)

	time.Sleep(100 * time.Millisecond)
	logger.Info("bye")
}
