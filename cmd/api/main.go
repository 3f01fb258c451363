package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trafficwise/platform/internal/app"
	"github.com/trafficwise/platform/internal/auth"
	"github.com/trafficwise/platform/internal/guard"
	"github.com/trafficwise/platform/internal/infra"
	"github.com/trafficwise/platform/internal/provider"
	"github.com/trafficwise/platform/internal/repository"
	"github.com/trafficwise/platform/internal/service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Connect to Postgres and bring the schema up to date
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Shared state: Redis when configured, process memory otherwise
	var (
		denylist auth.Denylist      = auth.NewMemoryDenylist()
		limiter  guard.Limiter      = guard.NewRateLimiter(cfg.SubmitRateLimit, cfg.SubmitRateWindow)
		dedup    guard.Deduplicator = guard.NewIdempotencyGuard(cfg.IdempotencyTTL)
	)
	if cfg.RedisURL != "" {
		rdb, err := infra.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		denylist = auth.NewRedisDenylist(rdb)
		limiter = guard.NewRedisRateLimiter(rdb, cfg.SubmitRateLimit, cfg.SubmitRateWindow, logger)
		dedup = guard.NewRedisIdempotencyGuard(rdb, cfg.IdempotencyTTL, logger)
		logger.Info("connected to redis")
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiry)
	breaker := guard.NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerResetTimeout)
	processor := provider.NewProcessingClient(cfg.ProcessingURL, cfg.ProcessingTimeout, breaker, logger)

	if err := bootstrapAdmin(ctx, cfg, pool, logger); err != nil {
		return err
	}

	r := app.NewRouter(app.RouterDeps{
		Pool:      pool,
		Config:    cfg,
		JWTMgr:    jwtMgr,
		Denylist:  denylist,
		Limiter:   limiter,
		Dedup:     dedup,
		Processor: processor,
		Logger:    logger,
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		// uploads are large and processing is slow
		ReadTimeout:  cfg.ProcessingTimeout,
		WriteTimeout: cfg.ProcessingTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// bootstrapAdmin provisions the first admin from config when none exists.
func bootstrapAdmin(ctx context.Context, cfg *infra.Config, pool repository.TxBeginner, logger *slog.Logger) error {
	if cfg.BootstrapAdminEmail == "" {
		return nil
	}
	dir := service.NewDirectoryService(pool, repository.NewPgAuthUserRepository(),
		repository.NewPgProfileRepository(), repository.NewOutboxRepository(), logger)
	created, err := dir.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logger.Info("bootstrap admin created", "email", cfg.BootstrapAdminEmail)
	}
	return nil
}
