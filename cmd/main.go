// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/cache"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/config"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/database"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/handler"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/inventory"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/logging"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/metrics"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/notify"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/repository"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/repository/sqlite"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	// ── 1. Open the store ─────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	checks := map[string]handler.CheckFunc{"store": store.Ping}

	// ── 2. Optional Redis: availability cache and idempotency keys ────────
	var (
		tierCache   service.TierCache
		idem        service.Idempotency
		invalidator inventory.Invalidator
	)
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		availability := cache.NewAvailability(client, cfg.AvailabilityTTL)
		tierCache, invalidator = availability, availability
		idem = cache.NewIdempotency(client, cfg.IdempotencyTTL, cfg.IdempotencyLease)
		checks["redis"] = func(ctx context.Context) error { return cache.HealthCheck(ctx, client) }
	} else {
		logger.Info("REDIS_URL not set, running without availability cache and idempotency keys")
	}

	// ── 3. Metrics, notifications, inventory ──────────────────────────────
	m := metrics.New(prometheus.DefaultRegisterer)

	var pub notify.Publisher = notify.LogPublisher{Logger: logger}
	if cfg.PubNubEnabled() {
		pub = notify.NewPubNubPublisher(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubUserID)
		logger.Info("publishing notifications to pubnub")
	}
	dispatcher := notify.NewDispatcher(pub, cfg.NotifyQueueSize, logger, m)

	alloc := inventory.NewAllocator(store,
		inventory.WithLogger(logger),
		inventory.WithMetrics(m),
		inventory.WithInvalidator(invalidator),
	)
	reconciler := inventory.NewReconciler(alloc, store, store, cfg.ReconcileGrace, cfg.ReconcileInterval, logger)

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		dispatcher.Run(workersCtx)
	}()
	go func() {
		defer workers.Done()
		reconciler.Run(workersCtx)
	}()

	// ── 4. Wire up layers ────────────────────────────────────────────────
	opts := service.Options{Logger: logger, Metrics: m, Notifier: dispatcher}
	h := handler.New(handler.Services{
		Events: service.NewEventService(store, tierCache, opts),
		Registrations: service.NewRegistrationService(store, alloc, idem, service.RegistrationConfig{
			PaymentDueAfter:     cfg.PaymentDueAfter,
			CompensationTimeout: cfg.CompensationTimeout,
		}, opts),
		Payments:   service.NewPaymentService(store, opts),
		Attendance: service.NewAttendanceService(store, opts),
		Surveys:    service.NewSurveyService(store, opts),
		History:    service.NewHistoryService(store),
	}, logger)

	r := handler.NewRouter(h)
	r.Get("/ready", handler.Ready(checks))
	r.Handle("/metrics", promhttp.Handler())

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stopWorkers()
		workers.Wait()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	// In-flight requests are done; drain queued notifications and stop the sweep.
	stopWorkers()
	workers.Wait()
	logger.Info("server stopped")
	return nil
}

// openStore opens the configured backend and returns a func that closes it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (service.Store, func(), error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened sqlite store", "path", cfg.SQLitePath)
		return s, func() { _ = s.Close() }, nil
	default:
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		if err := database.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return repository.New(pool), pool.Close, nil
	}
}
