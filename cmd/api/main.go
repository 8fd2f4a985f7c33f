package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zelenivrt/storefront-backend/internal/cache"
	"github.com/zelenivrt/storefront-backend/internal/config"
	"github.com/zelenivrt/storefront-backend/internal/database"
	"github.com/zelenivrt/storefront-backend/internal/discount"
	"github.com/zelenivrt/storefront-backend/internal/handlers"
	"github.com/zelenivrt/storefront-backend/internal/logging"
	"github.com/zelenivrt/storefront-backend/internal/mailer"
	"github.com/zelenivrt/storefront-backend/internal/memstore"
	"github.com/zelenivrt/storefront-backend/internal/metrics"
	"github.com/zelenivrt/storefront-backend/internal/models"
	"github.com/zelenivrt/storefront-backend/internal/newsletter"
)

// store is what both services need from persistence
type store interface {
	newsletter.Store
	discount.Store
	handlers.Pinger
}

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)
	metrics.MustRegister(cfg.ServiceName)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis is optional
	var (
		redisClient *cache.Redis
		processed   newsletter.ProcessedTokens = cache.NewMemoryTokenSet()
	)
	if cfg.RedisAddr != "" {
		redisClient, err = cache.NewRedis(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer redisClient.Close()
		processed = cache.NewRedisTokenSet(redisClient)
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
	}

	mail := mailer.New(mailer.Config{
		FunctionURL: cfg.MailFunctionURL,
		APIKey:      cfg.MailFunctionKey,
		From:        cfg.MailFrom,
		ReplyTo:     cfg.MailReplyTo,
		Timeout:     cfg.MailTimeout,
	})

	nl := newsletter.NewService(st, mail, processed, logger, newsletter.Config{
		BaseURL:                cfg.PublicBaseURL,
		WelcomeDiscountCode:    cfg.WelcomeDiscountCode,
		WelcomeCooldown:        cfg.WelcomeCooldown,
		ConfirmationTTL:        cfg.ConfirmationTTL,
		AllowSimulatedDispatch: cfg.AllowSimulatedDispatch,
	})
	ds := discount.NewService(st, logger)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: handlers.NewRouter(handlers.RouterConfig{
			Newsletter:      nl,
			Discounts:       ds,
			Store:           st,
			Redis:           redisClient,
			Logger:          logger,
			CORSOrigins:     cfg.CORSOrigins,
			RateLimit:       cfg.RateLimit,
			RateLimitWindow: cfg.RateLimitWindow,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", cfg.Addr,
			"store", cfg.StoreDriver,
			"redis", redisClient != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, func(), error) {
	if cfg.StoreDriver == config.StorePostgres {
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("connected to postgres")
		return db, func() { db.Close() }, nil
	}

	logger.Warn("using in-memory store, data is lost on restart")
	st := memstore.New()
	st.PutDiscountCode(models.DiscountCode{
		Code:     cfg.WelcomeDiscountCode,
		Type:     models.DiscountPercentage,
		Value:    decimal.NewFromInt(10),
		IsActive: true,
	})
	return st, func() {}, nil
}
