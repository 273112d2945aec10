package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lib/pq"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/config"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/messaging"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
)

const (
	minReconnectInterval = 2 * time.Second
	maxReconnectInterval = time.Minute
)

// chat-relay forwards message inserts from PostgreSQL NOTIFY to the RabbitMQ
// changes exchange, feeding subscribers of the rabbitmq realtime driver.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		slog.Error("chat relay stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("chat relay stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting chat relay")

	connectCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	rmq, err := messaging.NewRabbitMQWithRetry(connectCtx, cfg.RabbitMQURL)
	cancel()
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer rmq.Close()
	slog.Info("connected to rabbitmq")

	listener := pq.NewListener(cfg.DatabaseURL, minReconnectInterval, maxReconnectInterval,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				slog.Warn("relay listener event",
					slog.Int("event", int(event)),
					slog.String("error", err.Error()))
			}
		})
	defer listener.Close()

	if err := listener.Listen(messaging.InsertChannel); err != nil {
		return fmt.Errorf("listen %s: %w", messaging.InsertChannel, err)
	}
	slog.Info("listening for message inserts", slog.String("channel", messaging.InsertChannel))

	messaging.NewRelay(rmq, listener.Notify).Run(ctx)
	return nil
}
