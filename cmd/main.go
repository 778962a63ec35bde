// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/campus-events/internal/auth"
	"github.com/Shivanand-hulikatti/campus-events/internal/blob"
	"github.com/Shivanand-hulikatti/campus-events/internal/config"
	"github.com/Shivanand-hulikatti/campus-events/internal/database"
	"github.com/Shivanand-hulikatti/campus-events/internal/handler"
	"github.com/Shivanand-hulikatti/campus-events/internal/kafka"
	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
	"github.com/Shivanand-hulikatti/campus-events/internal/notify"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository/memory"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository/postgres"
	"github.com/Shivanand-hulikatti/campus-events/internal/service"
	"github.com/Shivanand-hulikatti/campus-events/internal/telemetry"
	"github.com/Shivanand-hulikatti/campus-events/internal/ticket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	l := logger.New(cfg.Log.Level, cfg.Log.Mode, cfg.Log.Encoding)
	defer l.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		l.Fatal("telemetry setup failed", "error", err)
	}

	// ── 1. Storage ────────────────────────────────────────────────────────
	store, err := openStore(ctx, cfg, l)
	if err != nil {
		l.Fatal("storage", "error", err)
	}
	defer store.Close()

	// ── 2. Collaborators ─────────────────────────────────────────────────
	queue, redisClient, err := openQueue(ctx, cfg, l)
	if err != nil {
		l.Fatal("notification queue", "error", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	defer queue.Close()

	producer, err := openProducer(cfg, l)
	if err != nil {
		l.Fatal("kafka", "error", err)
	}
	defer producer.Close()

	posters, err := blob.NewLocalStore(cfg.Upload)
	if err != nil {
		l.Fatal("uploads", "error", err)
	}

	// ── 3. Wire up layers ────────────────────────────────────────────────
	issuer := ticket.NewIssuer(store.Registrations(), ticket.NewCodec(cfg.Ticket.ImageSize, cfg.Ticket.Recovery), l)
	dispatcher := notify.NewDispatcher(notify.Deps{
		Events:        store.Events(),
		Registrations: store.Registrations(),
		Users:         store.Users(),
		Issuer:        issuer,
		Mailer:        notify.NewMailer(cfg.SMTP, l),
		Logger:        l,
		Concurrency:   cfg.Notify.ReminderConcurrency,
	})
	worker := notify.NewWorker(queue, dispatcher, store.Registrations(), notify.WorkerConfig{
		Workers:     cfg.Notify.Workers,
		MaxAttempts: cfg.Notify.MaxAttempts,
		Backoff:     notify.BackoffConfig{BaseDelay: cfg.Notify.RetryBaseDelay, MaxDelay: cfg.Notify.RetryMaxDelay},
	}, l)

	h := handler.New(handler.Deps{
		Events:     service.NewEventService(store.Events(), producer, l),
		Moderation: service.NewModerationService(store.Events(), producer, l),
		Registrations: service.NewRegistrationService(service.RegistrationDeps{
			Events:        store.Events(),
			Registrations: store.Registrations(),
			Users:         store.Users(),
			Issuer:        issuer,
			Outbox:        queue,
			Sender:        dispatcher,
			Producer:      producer,
			Logger:        l,
		}),
		Export:       service.NewExportService(store.Events(), store.Registrations(), store.Users()),
		Reminders:    dispatcher,
		Posters:      posters,
		Logger:       l,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		MaxUpload:    cfg.Upload.MaxBytes,
	})
	authn := auth.NewAuthenticator(auth.NewVerifier(cfg.Auth), store.Users(), l)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(ctx); err != nil {
			l.Error("notification worker exited", "error", err)
		}
	}()

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger(l))       // structured access log
	r.Use(handler.CORS(cfg.HTTP.CORSOrigin))

	// Health
	r.Get("/health", handler.HealthCheck)

	// API routes
	r.Mount("/api", h.Routes(authn))

	// Uploaded posters
	uploads := http.StripPrefix(cfg.Upload.BaseURL+"/", http.FileServer(http.Dir(posters.Dir())))
	r.Handle(cfg.Upload.BaseURL+"/*", uploads)

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		l.Info("server listening", "addr", srv.Addr, "storage", cfg.StorageDriver, "queue", cfg.Notify.Queue)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("server error", "error", err)
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("graceful shutdown failed", "error", err)
	}

	stop()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		l.Warn("notification worker did not stop in time")
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		l.Warn("flushing traces failed", "error", err)
	}
	l.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, l logger.Logger) (repository.Store, error) {
	if cfg.StorageDriver == config.StorageMemory {
		l.Warn("using in-memory storage, data is lost on restart")
		return memory.NewStore(), nil
	}

	pool, err := database.NewPool(ctx, cfg.DB, l)
	if err != nil {
		return nil, err
	}
	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	l.Info("connected to PostgreSQL", "host", cfg.DB.Host, "database", cfg.DB.Name)
	return postgres.NewStore(pool), nil
}

func openQueue(ctx context.Context, cfg *config.Config, l logger.Logger) (notify.Queue, *redis.Client, error) {
	if cfg.Notify.Queue != config.QueueRedis {
		return notify.NewMemoryQueue(cfg.Notify.QueueBuffer), nil, nil
	}
	cli, err := notify.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	l.Info("connected to Redis", "addr", cfg.Redis.Addr, "key", cfg.Notify.QueueKey)
	return notify.NewRedisQueue(cli, cfg.Notify.QueueKey), cli, nil
}

func openProducer(cfg *config.Config, l logger.Logger) (kafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return kafka.NoopProducer{Logger: l}, nil
	}
	sp, err := kafka.NewSyncProducer(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	l.Info("Kafka producer connected", "brokers", cfg.Kafka.Brokers)
	return kafka.NewProducer(sp, l), nil
}
