package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "github.com/soslanov/authd/internal/config/email-notifier"
	"github.com/soslanov/authd/internal/mail"
	"github.com/soslanov/authd/internal/obs"
	kafkax "github.com/soslanov/authd/internal/repository/kafka"
	pg "github.com/soslanov/authd/internal/repository/postgres"
	notifier "github.com/soslanov/authd/internal/services/email-notifier"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/email-notifier.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	l.Info("starting email-notifier",
		zap.Strings("brokers", cfg.In.Brokers),
		zap.String("topic", cfg.In.Topic),
		zap.String("group_id", cfg.In.GroupID),
		zap.String("smtp_addr", cfg.SMTP.Addr),
	)

	db, err := pg.New(rootCtx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		return db.Pool.Ping(ctx)
	}, l)

	cons := kafkax.NewConsumer(&kafkax.ConsumerConfig{
		Brokers:       cfg.In.Brokers,
		GroupID:       cfg.In.GroupID,
		Topic:         cfg.In.Topic,
		FromBeginning: cfg.In.FromBeginning,
		Logger:        l,
	})
	defer func() { _ = cons.Close() }()

	handler := notifier.NewHandler(notifier.Deps{
		Log:           l,
		Users:         pg.NewUserRepo(db),
		Notifications: pg.NewNotificationRepo(db),
		Mail:          mail.New(cfg.SMTP).WithLogger(l),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- cons.Consume(rootCtx, kafkax.JSONHandler(l, handler.HandleSecurityEvent))
	}()

	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("consumer error", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
