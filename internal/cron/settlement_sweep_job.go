package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/chama-backend/internal/reconciler"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

type pendingSweeper interface {
	Sweep(ctx context.Context) (reconciler.SweepResult, error)
}

type SettlementSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper pendingSweeper
}

// NewSettlementSweepJob resolves gateway transfers whose callback never arrived.
func NewSettlementSweepJob(params SettlementSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &settlementSweepJob{logg: params.Logger, sweeper: params.Sweeper}, nil
}

type settlementSweepJob struct {
	logg    *logger.Logger
	sweeper pendingSweeper
}

func (j *settlementSweepJob) Name() string { return "pending-transfer-sweep" }

func (j *settlementSweepJob) Run(ctx context.Context) error {
	res, err := j.sweeper.Sweep(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":   res.Scanned,
		"completed": res.Completed,
		"failed":    res.Failed,
		"pending":   res.Pending,
		"errors":    res.Errors,
	})
	if err != nil {
		return fmt.Errorf("pending transfer sweep: %w", err)
	}
	if res.Errors > 0 {
		j.logg.Warn(logCtx, "pending transfer sweep finished with errors")
		return nil
	}
	j.logg.Info(logCtx, "pending transfer sweep complete")
	return nil
}
