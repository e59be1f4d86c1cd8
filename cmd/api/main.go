package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/chama-backend/api/routes"
	"github.com/angelmondragon/chama-backend/internal/engine"
	"github.com/angelmondragon/chama-backend/internal/reconciler"
	"github.com/angelmondragon/chama-backend/pkg/config"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/env"
	"github.com/angelmondragon/chama-backend/pkg/instance"
	"github.com/angelmondragon/chama-backend/pkg/logger"
	"github.com/angelmondragon/chama-backend/pkg/metrics"
	"github.com/angelmondragon/chama-backend/pkg/migrate"
	"github.com/angelmondragon/chama-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/chama-backend/pkg/redis"
)

const callbackConsumer = "gateway-callbacks"

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]string{"env": cfg.App.Env},
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := dbClient.RegisterMetrics(registry); err != nil {
		logg.Warn(context.Background(), "db pool metrics unavailable")
	}

	// The api only books intents; the worker owns the gateway client.
	eng, err := engine.New(context.Background(), engine.Params{
		Config:  cfg,
		DB:      dbClient,
		Metrics: metrics.NewSettlementMetrics(registry),
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build settlement engine", err)
		os.Exit(1)
	}

	guard, err := idempotency.NewGuard(redisClient, cfg.Eventing.CallbackIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create callback replay guard", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID(),
		"timezone": eng.Location.String(),
	})
	logg.Info(ctx, "starting api server")

	handler := routes.NewRouter(
		cfg,
		logg,
		dbClient,
		redisClient,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		routes.Services{
			Members:       eng.Activities,
			Groups:        eng.Activities,
			Activities:    eng.Activities,
			Wallet:        eng.Transfers,
			Balances:      eng.Store,
			Contributions: eng.Contributions,
			Rotation:      eng.Rotation,
			Loans:         eng.Loans,
			Fines:         eng.Fines,
			Dividends:     eng.Dividends,
			Callbacks:     reconciler.NewCallbackHandler(eng.Reconciler, guard, callbackConsumer),
		},
	)

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
