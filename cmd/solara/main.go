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

	"github.com/solara-erp/solara-erp/internal/app"
	"github.com/solara-erp/solara-erp/internal/billing"
	"github.com/solara-erp/solara-erp/internal/closing"
	"github.com/solara-erp/solara-erp/internal/masterdata"
	"github.com/solara-erp/solara-erp/internal/observability"
	"github.com/solara-erp/solara-erp/internal/platform/cache"
	"github.com/solara-erp/solara-erp/internal/platform/db"
	"github.com/solara-erp/solara-erp/internal/provider"
	"github.com/solara-erp/solara-erp/internal/settlement"
	"github.com/solara-erp/solara-erp/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		_ = redisClient.Close()
	}()

	metrics := observability.NewMetrics()
	history := shared.NewHistoryWriter(pool)
	idem := shared.NewIdempotencyStore(pool)
	locker := shared.NewLocker(redisClient, cfg.SettlementLockTTL)

	providerClient := provider.NewClient(provider.Config{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		Sandbox: cfg.ProviderSandbox,
		Timeout: cfg.ProviderTimeout,
	})

	masterRepo := masterdata.NewRepository(pool)
	billingRepo := billing.NewRepository(pool)
	closingRepo := closing.NewRepository(pool)
	settlementRepo := settlement.NewRepository(pool)

	billingService := billing.NewService(logger, billingRepo, masterRepo, providerClient, history)
	closingService := closing.NewService(logger, closingRepo, masterRepo)
	settlementService := settlement.NewService(logger, settlementRepo, closingRepo, masterRepo, providerClient, locker, idem, history)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		BillingHandler:    billing.NewHandler(logger, billingService, metrics),
		ClosingHandler:    closing.NewHandler(logger, closingService),
		SettlementHandler: settlement.NewHandler(logger, settlementService, settlementRepo, metrics),
		Pool:              pool,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr), slog.Bool("sandbox", cfg.ProviderSandbox))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
