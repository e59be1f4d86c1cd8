package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultPruneBatch      = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository publishedPruner
	// Retention defaults to 30 days.
	Retention time.Duration
	BatchSize int
	Now       func() time.Time
}

// outboxRetentionJob deletes published outbox rows older than the retention
// window, one bounded transaction per batch. Unpublished rows are never touched.
type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	pruner    publishedPruner
	retention time.Duration
	batch     int
	now       func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		pruner:    params.Repository,
		retention: params.Retention,
		batch:     params.BatchSize,
		now:       params.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.batch <= 0 {
		job.batch = defaultPruneBatch
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	total, batches, err := j.prune(ctx, cutoff)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
		"batches":      batches,
	})
	if err != nil {
		j.logg.Error(logCtx, "outbox retention stopped early", err)
		return err
	}
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}

// prune keeps deleting while batches come back full.
func (j *outboxRetentionJob) prune(ctx context.Context, cutoff time.Time) (int64, int, error) {
	var total int64
	batches := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, batches, err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = j.pruner.DeletePublishedBefore(tx, cutoff, j.batch)
			return err
		})
		if err != nil {
			return total, batches, err
		}
		total += n
		batches++
		if n < int64(j.batch) {
			return total, batches, nil
		}
	}
}
