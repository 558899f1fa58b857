package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"handbook/api/internal/app"
	"handbook/api/internal/config"
	"handbook/api/internal/notify"
	"handbook/api/internal/session"
	"handbook/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.WithError(err).Fatal("migrations failed")
	}

	dataStore := store.NewPostgresStore(db)

	var limiter *session.RateLimiter
	var notifier interface {
		TreeChanged(ctx context.Context, ids []string) error
	} = notify.Noop{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Fatal("redis connection failed")
		}
		defer client.Close()
		limiter = session.NewRateLimiter(client, cfg.LoginRateLimit, cfg.LoginWindow)
		notifier = notify.NewPublisher(client, cfg.NotifyChannel)
		logger.Info("redis enabled for rate limiting and change notifications")
	} else {
		logger.Warn("REDIS_URL not set, login rate limiting disabled")
	}

	passwordHash := cfg.AdminPasswordHash
	if passwordHash == "" && cfg.AdminPassword != "" {
		// Dev convenience: hash the plaintext password at startup.
		hashed, err := session.HashPassword(cfg.AdminPassword)
		if err != nil {
			logger.WithError(err).Fatal("could not hash ADMIN_PASSWORD")
		}
		passwordHash = hashed
		logger.Warn("using ADMIN_PASSWORD from environment, set ADMIN_PASSWORD_HASH in production")
	}
	if passwordHash == "" || cfg.SessionSecret == "" {
		logger.Warn("admin credentials not configured, mutation endpoints disabled")
	}

	service := app.New(dataStore, notifier, logger, cfg.WikiTitle, cfg.WikiTagline)
	httpServer := app.NewHTTPServer(service, logger, cfg.CORSOrigin, []byte(cfg.SessionSecret), passwordHash, cfg.SessionTTL, limiter)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Addr).Info("handbook API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
}
