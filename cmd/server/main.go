package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/HeliumBERT/tracking/internal/config"
	"github.com/HeliumBERT/tracking/internal/database"
	"github.com/HeliumBERT/tracking/internal/handler"
	"github.com/HeliumBERT/tracking/internal/logger"
	"github.com/HeliumBERT/tracking/internal/middleware"
	"github.com/HeliumBERT/tracking/internal/queue"
	"github.com/HeliumBERT/tracking/internal/repository"
	"github.com/HeliumBERT/tracking/internal/repository/memory"
	"github.com/HeliumBERT/tracking/internal/router"
	"github.com/HeliumBERT/tracking/internal/service"
	"github.com/HeliumBERT/tracking/internal/utils"
)

// store is what main needs from either storage backend.
type store interface {
	service.Store
	Ping(ctx context.Context) error
}

func main() {
	_ = godotenv.Load() // .env is optional

	log, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		log, _ = zap.NewProduction()
		log.Warn("logger config failed, using production defaults", zap.Error(err))
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, db, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}

	hasher, err := utils.NewPasswordHasher(cfg.Argon2)
	if err != nil {
		log.Fatal("password hasher", zap.Error(err))
	}

	var publisher service.AuditPublisher
	if cfg.AuditQueueEnabled {
		amqpPub := service.NewAMQPAuditPublisher(service.AMQPPublisherConfig{URL: cfg.RabbitMQURL}, log)
		go amqpPub.Run(ctx)
		publisher = amqpPub
		go func() {
			if err := queue.StartAuditConsumer(ctx, cfg.RabbitMQURL, cfg.AuditLogPath, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	deps := service.Deps{
		Store:  st,
		Hasher: hasher,
		Audit:  service.NewAuditRecorder(time.Now, publisher, log),
		Log:    log,
	}
	sessions, err := service.NewSessionService(deps, service.SessionConfig{
		InactivityTimeout:     cfg.InactivityTimeout,
		ActivityCheckInterval: cfg.ActivityCheckInterval,
	})
	if err != nil {
		log.Fatal("session service", zap.Error(err))
	}
	users, err := service.NewUserService(deps)
	if err != nil {
		log.Fatal("user service", zap.Error(err))
	}

	if cfg.AdminPassword != "" {
		if _, err := service.EnsureAdmin(ctx, st, hasher, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword, log); err != nil {
			log.Fatal("bootstrap admin", zap.Error(err))
		}
	}

	rdb, err := config.LoadLimiterRedis().Connect(ctx)
	if err != nil {
		log.Warn("redis unavailable, login rate limiting disabled", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, router.Deps{
		Sessions:     sessions,
		Users:        users,
		Audit:        service.NewAuditService(st),
		UserLoader:   st.Users(),
		Health:       st,
		LoginLimiter: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
		Cookie: handler.CookieConfig{
			Secret:     cfg.CookieSecret,
			MaxAge:     cfg.CookieAge,
			UsingHTTPS: cfg.UsingHTTPS,
		},
		Log: log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
}

// openStore returns the configured backend. db is nil for the memory store.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store, *sql.DB, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil, nil
	}
	db, err := database.Open(ctx, database.Options{
		User:     cfg.DBUser,
		Password: cfg.DBPass,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repository.NewStore(db), db, nil
}
