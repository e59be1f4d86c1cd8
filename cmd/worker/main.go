package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/chama-backend/internal/engine"
	"github.com/angelmondragon/chama-backend/internal/gateway"
	"github.com/angelmondragon/chama-backend/internal/tasks"
	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/config"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/instance"
	"github.com/angelmondragon/chama-backend/pkg/logger"
	"github.com/angelmondragon/chama-backend/pkg/metrics"
	"github.com/angelmondragon/chama-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	gatewayClient, err := gateway.NewHTTPClient(cfg.Gateway, gateway.WithLocation(clock.Location(cfg.Engine.Timezone)))
	if err != nil {
		logg.Error(context.Background(), "failed to build gateway client", err)
		os.Exit(1)
	}

	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	if err := dbClient.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		logg.Warn(context.Background(), "db pool metrics unavailable")
	}
	eng, err := engine.New(context.Background(), engine.Params{
		Config:  cfg,
		DB:      dbClient,
		Gateway: gatewayClient,
		Metrics: settlementMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build settlement engine", err)
		os.Exit(1)
	}

	registry := tasks.NewRegistry()
	eng.RegisterTasks(registry)
	pool, err := tasks.NewPool(tasks.PoolParams{
		Repo:         eng.TaskRepo,
		Registry:     registry,
		Logger:       logg,
		Clock:        eng.Clock,
		Metrics:      settlementMetrics,
		Size:         cfg.Worker.PoolSize,
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.ClaimBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create task pool", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
		Pool:   pool,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
		"poolSize":    cfg.Worker.PoolSize,
	})
	go func() {
		if err := metrics.Serve(ctx, cfg.App.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener failed", err)
		}
	}()
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
