package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/httpserver"
	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/metrics"
	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/postgres"
	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/redis"
	"github.com/AlphaB135/scg-noti-sub001/internal/app"
	"github.com/AlphaB135/scg-noti-sub001/internal/broadcast"
	"github.com/AlphaB135/scg-noti-sub001/internal/platform/config"
	"github.com/AlphaB135/scg-noti-sub001/internal/platform/logging"
	"github.com/AlphaB135/scg-noti-sub001/internal/platform/version"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout = 10 * time.Second
	connectTimeout  = 30 * time.Second
)

func runGracefulShutdown(srv *httpserver.Server, notifier *app.Notifier, hub *broadcast.Hub, stopSources context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Detach first so late events are dropped instead of hitting a stopped hub.
		notifier.Detach()
		stopSources()
		hub.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.BackplaneMetrics) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, running as a single instance")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL,
		redis.NewMetricsHook(m),
		redis.NewCircuitBreakerHook(redis.BreakerSettings{}, m),
	)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupDB(ctx context.Context, cfg *config.Config) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		slog.Info("DATABASE_URL not set, database listener disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if cfg.RunMigrations {
		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
	}
	return pool
}

func healthChecks(redisClient *goredis.Client, pool *pgxpool.Pool) []httpserver.HealthCheck {
	var checks []httpserver.HealthCheck
	if redisClient != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	if pool != nil {
		checks = append(checks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	}
	return checks
}

func instanceID(cfg *config.Config) string {
	if cfg.InstanceID != "" {
		return cfg.InstanceID
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().Version)

	metricSet := metrics.NewSet()

	sourcesCtx, stopSources := context.WithCancel(context.Background())
	defer stopSources()

	redisClient := setupRedis(sourcesCtx, cfg, metricSet.Backplane)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	pool := setupDB(sourcesCtx, cfg)
	if pool != nil {
		defer pool.Close()
	}

	hub, err := broadcast.NewHub(broadcast.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		MaxConnections:    cfg.MaxWebSocketConnections,
		Clock:             clock,
		Metrics:           metricSet.WebSocket,
	})
	if err != nil {
		slog.Error("Failed to create hub", "error", err)
		os.Exit(1)
	}

	// Pass nil explicitly to avoid a typed-nil interface.
	var notifier *app.Notifier
	if redisClient != nil {
		backplane := redis.NewBackplane(redisClient, cfg.BackplaneChannel, metricSet.Backplane)
		notifier = app.NewNotifier(backplane)

		sub, err := backplane.Subscribe(sourcesCtx)
		if err != nil {
			slog.Error("Failed to subscribe to backplane", "error", err)
			os.Exit(1)
		}
		go sub.Run(sourcesCtx, notifier.Deliver)
	} else {
		notifier = app.NewNotifier(nil)
	}
	notifier.Attach(hub)

	if pool != nil {
		listener := postgres.NewListener(pool, cfg.NotifyChannel, notifier, metricSet.Events, clock)
		go func() {
			if err := listener.Run(sourcesCtx); err != nil {
				slog.Error("Database listener stopped", "error", err)
			}
		}()
	}

	var instances *redis.InstanceRegistry
	if redisClient != nil {
		instances = redis.NewInstanceRegistry(redisClient, instanceID(cfg), version.Get().Version, cfg.InstanceInterval, hub, clock)
		go instances.Run(sourcesCtx)
	}

	router, err := broadcast.NewRouter(metricSet.WebSocket)
	if err != nil {
		slog.Error("Failed to create router", "error", err)
		os.Exit(1)
	}

	deps := httpserver.Dependencies{
		Hub:          hub,
		Router:       router,
		Publisher:    notifier,
		Metrics:      metricSet,
		HealthChecks: healthChecks(redisClient, pool),
		Clock:        clock,
	}
	if instances != nil {
		deps.Cluster = instances
	}

	srv, err := httpserver.NewServer(cfg, deps)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(srv, notifier, hub, stopSources)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
