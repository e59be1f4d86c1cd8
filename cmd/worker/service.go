package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/chama-backend/pkg/config"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

const heartbeatInterval = time.Minute

type pinger interface {
	Ping(context.Context) error
}

type taskRunner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Config *config.Config
	Logger *logger.Logger
	DB     pinger
	Pool   taskRunner
}

// Service drains the gateway initiation queue.
type Service struct {
	cfg  *config.Config
	logg *logger.Logger
	db   pinger
	pool taskRunner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Pool == nil {
		return nil, errors.New("task pool is required")
	}
	return &Service{
		cfg:  params.Config,
		logg: params.Logger,
		db:   params.DB,
		pool: params.Pool,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.pool.Run(ctx)
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			<-errCh
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "task pool stopped unexpectedly", err)
			}
			return err
		case <-ticker.C:
			if err := s.db.Ping(ctx); err != nil {
				s.logg.Error(ctx, "worker heartbeat: database unreachable", err)
			}
		}
	}
}
