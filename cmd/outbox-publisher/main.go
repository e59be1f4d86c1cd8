package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/config"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/instance"
	"github.com/angelmondragon/chama-backend/pkg/logger"
	"github.com/angelmondragon/chama-backend/pkg/metrics"
	"github.com/angelmondragon/chama-backend/pkg/migrate"
	"github.com/angelmondragon/chama-backend/pkg/outbox"
	"github.com/angelmondragon/chama-backend/pkg/outbox/registry"
	"github.com/angelmondragon/chama-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

type options struct {
	drain  bool
	replay string
	force  bool
}

func main() {
	var opts options
	flag.BoolVar(&opts.drain, "drain", false, "publish the current backlog and exit")
	flag.StringVar(&opts.replay, "replay", "", "requeue a dead-lettered event by id and exit")
	flag.BoolVar(&opts.force, "force", false, "with -replay, requeue even when the failure reason is not replayable")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]string{"env": cfg.App.Env},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": serviceKind,
		"instance":    instance.ID(),
	})

	if err := run(ctx, cfg, logg, opts); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	if opts.replay != "" {
		return replay(ctx, dbClient, logg, opts.replay, opts.force)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return err
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	if opts.drain {
		batches, err := service.Drain(ctx)
		logg.Info(logg.WithField(ctx, "batches", batches), "outbox drain finished")
		return err
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.App.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener failed", err)
		}
	}()
	logg.Info(ctx, "starting outbox publisher")
	return service.Run(ctx)
}

func replay(ctx context.Context, dbClient *db.Client, logg *logger.Logger, rawID string, force bool) error {
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", rawID, err)
	}
	dlq := outbox.NewDLQRepository(dbClient.DB())
	return dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := dlq.ReplayTx(tx, eventID, force)
		if err != nil {
			return fmt.Errorf("replay %s: %w", eventID, err)
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"event_id":     eventID.String(),
			"event_type":   entry.EventType,
			"error_reason": entry.ErrorReason,
			"forced":       force,
		}), "dead-lettered event requeued")
		return nil
	})
}
