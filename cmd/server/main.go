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

	"retailpos/internal/cache"
	"retailpos/internal/config"
	"retailpos/internal/domain"
	"retailpos/internal/httpapi"
	"retailpos/internal/jobs"
	"retailpos/internal/metrics"
	"retailpos/internal/service"
	"retailpos/internal/store"
	"retailpos/internal/store/memory"
	pgstore "retailpos/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		fatal("invalid security configuration", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				fatal("schema migration failed", err)
			}
			logger.Info("schema migrated")
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository ready", "kind", "postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository ready", "kind", "memory")
	}

	tierCache := cache.TierCache(cache.NoopTierCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisTierCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, tier cache disabled", "error", err)
		} else {
			tierCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("tier cache ready", "kind", "redis", "ttl", cfg.TierCacheTTL)
		}
	}

	m := metrics.New()
	svc := service.New(repo, service.Options{
		TierCache:          tierCache,
		TierCacheTTL:       cfg.TierCacheTTL,
		Metrics:            m,
		Logger:             logger,
		ReceiptMaxAttempts: cfg.ReceiptMaxAttempts,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	if err := bootstrapAdmin(ctx, auth, cfg); err != nil {
		fatal("bootstrap admin failed", err)
	}
	api := httpapi.New(svc, auth, m, logger, cfg.AllowedOrigin)

	if cfg.MaintenanceInterval > 0 {
		sched, err := jobs.Start(jobs.NewAuditor(svc, m, logger), cfg.MaintenanceInterval)
		if err != nil {
			fatal("audit scheduler failed", err)
		}
		closers = append([]func() error{sched.Shutdown}, closers...)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS backend listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", "error", err)
		}
	}
	logger.Info("server stopped")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if (cfg.BootstrapAdminEmail == "") != (cfg.BootstrapAdminPass == "") {
		return fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}
	if cfg.BootstrapAdminPass != "" && len(cfg.BootstrapAdminPass) < 12 {
		return fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD must be at least 12 characters")
	}
	return nil
}

// bootstrapAdmin creates the first admin on an empty user table so a fresh
// database can be administered through the API.
func bootstrapAdmin(ctx context.Context, auth *httpapi.AuthManager, cfg config.Config) error {
	if cfg.BootstrapAdminEmail == "" {
		return nil
	}
	users, err := auth.ListEmployees(ctx, "")
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	_, err = auth.CreateEmployee(ctx, domain.Actor{UserID: "system", Role: domain.RoleAdmin}, domain.EmployeeCreateRequest{
		Email:    cfg.BootstrapAdminEmail,
		Name:     "Administrator",
		Password: cfg.BootstrapAdminPass,
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		return err
	}
	slog.Info("bootstrap admin created", "email", cfg.BootstrapAdminEmail)
	return nil
}
