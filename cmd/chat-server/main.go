package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/cache"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/config"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/handler"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/messaging"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/middleware"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/profile"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/realtime"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/repository/postgres"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/service"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/session"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/websocket"
)

const (
	dbStatsInterval        = 15 * time.Second
	sessionCleanupInterval = time.Hour
	shutdownTimeout        = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		slog.Error("chat server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("server stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting chat server",
		slog.String("environment", cfg.Environment),
		slog.String("realtime_driver", cfg.RealtimeDriver))

	db, err := config.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("connected to postgresql")

	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	messageRepo, err := postgres.NewMessageRepository(db)
	if err != nil {
		return err
	}
	roomRepo, err := postgres.NewRoomRepository(db)
	if err != nil {
		return err
	}
	sessionRepo, err := postgres.NewSessionRepository(db)
	if err != nil {
		return err
	}
	profileRepo := postgres.NewProfileRepository(db)

	clock := clockwork.NewRealClock()

	durable, redisStore, err := openDurableStore(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisStore != nil {
		defer redisStore.Close()
	}
	cacheSvc := cache.NewService(durable, cache.NewMemoryStore(), clock)

	authors := profile.NewResolver(profileRepo)
	rooms := service.NewRoomFetcher(roomRepo, cacheSvc, clock, cfg.DefaultRoom)
	messages := service.NewMessageFetcher(messageRepo, authors, cacheSvc, clock)
	chatService := service.NewChatService(messageRepo, authors)

	var broker handler.BrokerStatus
	var subscriber realtime.Subscriber
	switch cfg.RealtimeDriver {
	case config.DriverRabbitMQ:
		connectCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err := messaging.NewRabbitMQWithRetry(connectCtx, cfg.RabbitMQURL)
		cancel()
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer rmq.Close()
		broker = rmq
		subscriber = realtime.NewAMQPSubscriber(rmq, authors)
	default:
		subscriber = realtime.NewPGSubscriber(cfg.DatabaseURL, authors)
	}

	hub := websocket.NewHub()
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()

	newSession := func(userID, roomID string, observer func(session.Update)) websocket.Session {
		return session.NewController(session.Config{
			UserID:        userID,
			InitialRoomID: roomID,
			DefaultRoom:   rooms.DefaultRoom(),
			Rooms:         rooms,
			Messages:      messages,
			Subscriber:    subscriber,
			Mutator:       chatService,
			Memory:        cacheSvc,
			Clock:         clock,
			Observer:      observer,
		})
	}

	go recordDBStats(ctx, db)
	go startSessionCleanup(ctx, sessionRepo)

	chatHandler := handler.NewChatHandler(rooms, messages, chatService)
	wsHandler := handler.NewWebSocketHandler(hub, newSession, middleware.ParseOrigins(cfg.AllowedOrigins))

	apiValidator, err := middleware.OpenAPIValidator(middleware.OpenAPIValidatorConfig{
		ValidateResponses: cfg.IsDevelopment(),
	})
	if err != nil {
		return err
	}

	apiLimiter := middleware.NewRateLimiter(20, 50)
	defer apiLimiter.Stop()

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins)))
	r.Use(middleware.Metrics())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(db, broker, cachePinger(redisStore)))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(sessionRepo))
		r.Use(apiLimiter.Middleware())

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(apiValidator)
			r.Get("/rooms", chatHandler.ListRooms)
			r.Get("/rooms/{id}/messages", chatHandler.ListMessages)
			r.Post("/rooms/{id}/messages", chatHandler.SendMessage)
			r.Post("/messages/{id}/likes", chatHandler.UpdateLikes)
		})
		r.Get("/ws/chat", wsHandler.HandleConnection)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("chat server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// hijacked websocket connections are not tracked by Shutdown
	hubCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openDurableStore connects the Redis tier when configured, otherwise rooms
// and last-room markers live in process memory.
func openDurableStore(ctx context.Context, redisURL string) (cache.Store, *cache.RedisStore, error) {
	if redisURL == "" {
		slog.Info("REDIS_URL not set, using in-memory durable cache")
		return cache.NewMemoryStore(), nil, nil
	}

	client, err := cache.ConnectRedis(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	store := cache.NewRedisStore(client, "")
	slog.Info("connected to redis")
	return store, store, nil
}

// cachePinger keeps a missing Redis store out of the readiness report.
func cachePinger(store *cache.RedisStore) handler.CachePinger {
	if store == nil {
		return nil
	}
	return store
}

func recordDBStats(ctx context.Context, db *sql.DB) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.RecordDBStats(db.Stats())
		}
	}
}

// startSessionCleanup deletes expired sessions every hour
func startSessionCleanup(ctx context.Context, repo domain.SessionRepository) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping session cleanup task")
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			count, err := repo.DeleteExpired(cleanupCtx)
			cancel()
			if err != nil {
				slog.Error("session cleanup failed", slog.String("error", err.Error()))
				continue
			}
			slog.Info("session cleanup completed", slog.Int64("sessions_deleted", count))
		}
	}
}
