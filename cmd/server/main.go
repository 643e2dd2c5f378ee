package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"cantina/backend/internal/cache"
	"cantina/backend/internal/config"
	"cantina/backend/internal/httpapi"
	"cantina/backend/internal/logger"
	"cantina/backend/internal/notify"
	"cantina/backend/internal/service"
	"cantina/backend/internal/store"
	"cantina/backend/internal/store/memory"
	pgstore "cantina/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logg, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logg.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, logg)
		if err != nil {
			logg.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(ctx); err != nil {
			logg.Fatal("schema migration failed", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logg.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logg.Info("repository: in-memory (seeded)")
	}

	opts := service.Options{
		DebtCeiling:     cfg.DebtCeiling,
		AccountCacheTTL: cfg.AccountCacheTTL(),
		Logger:          logg,
	}
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		accounts := cache.NewRedisAccountCache(client)
		if err := accounts.Ping(ctx); err != nil {
			logg.Warn("redis unavailable, using noop cache and publisher", zap.Error(err))
			_ = client.Close()
		} else {
			opts.Accounts = accounts
			opts.Publisher = notify.NewRedisPublisher(client, cfg.NotificationChannel)
			closers = append(closers, client.Close)
			logg.Info("cache: redis", zap.String("channel", cfg.NotificationChannel))
		}
	} else {
		logg.Info("cache: noop")
	}

	svc := service.New(repo, opts)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo, logg)
	api := httpapi.New(svc, auth, httpapi.Options{AllowedOrigin: cfg.AllowedOrigin, Logger: logg})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logg.Info("canteen backend listening", zap.String("addr", cfg.Address()), zap.String("debt_ceiling", cfg.DebtCeiling.StringFixed(2)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logg.Error("close error", zap.Error(err))
		}
	}

	logg.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if !cfg.DebtCeiling.IsPositive() {
		return fmt.Errorf("DEBT_CEILING must be positive")
	}
	return nil
}
