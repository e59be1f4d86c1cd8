package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
	"github.com/angelmondragon/chama-backend/pkg/metrics"
)

const (
	defaultPoolSize     = 4
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 10
	defaultLease        = 5 * time.Minute
)

// PoolParams configure the worker pool.
type PoolParams struct {
	Repo         Repository
	Registry     *Registry
	Logger       *logger.Logger
	Clock        clock.Clock
	Metrics      *metrics.SettlementMetrics
	Size         int
	PollInterval time.Duration
	BatchSize    int
	Lease        time.Duration
}

// Pool claims due tasks and runs them on a fixed number of workers.
type Pool struct {
	repo         Repository
	registry     *Registry
	logg         *logger.Logger
	clock        clock.Clock
	metrics      *metrics.SettlementMetrics
	size         int
	pollInterval time.Duration
	batchSize    int
	lease        time.Duration
}

func NewPool(params PoolParams) (*Pool, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("task repository required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("handler registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	p := &Pool{
		repo:         params.Repo,
		registry:     params.Registry,
		logg:         params.Logger,
		clock:        params.Clock,
		metrics:      params.Metrics,
		size:         params.Size,
		pollInterval: params.PollInterval,
		batchSize:    params.BatchSize,
		lease:        params.Lease,
	}
	if p.clock == nil {
		p.clock = clock.System()
	}
	if p.size <= 0 {
		p.size = defaultPoolSize
	}
	if p.pollInterval <= 0 {
		p.pollInterval = defaultPollInterval
	}
	if p.batchSize <= 0 {
		p.batchSize = defaultBatchSize
	}
	if p.lease <= 0 {
		p.lease = defaultLease
	}
	return p, nil
}

// Run polls for due tasks until ctx is canceled.
func (p *Pool) Run(ctx context.Context) error {
	jobs := make(chan models.Task, p.batchSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			claimed, err := p.repo.ClaimDue(gctx, p.clock.Now(), p.lease, p.batchSize)
			if err != nil && !errors.Is(err, context.Canceled) {
				p.logg.Error(gctx, "claim due tasks failed", err)
			}
			for _, task := range claimed {
				select {
				case jobs <- task:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if len(claimed) == p.batchSize {
				continue
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			}
		}
	})

	for i := 0; i < p.size; i++ {
		g.Go(func() error {
			for task := range jobs {
				p.process(gctx, task)
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return err
}

// RunOnce claims one batch and runs it inline. It returns how many tasks ran.
func (p *Pool) RunOnce(ctx context.Context) (int, error) {
	claimed, err := p.repo.ClaimDue(ctx, p.clock.Now(), p.lease, p.batchSize)
	if err != nil {
		return 0, err
	}
	for _, task := range claimed {
		p.process(ctx, task)
	}
	return len(claimed), nil
}

func (p *Pool) process(ctx context.Context, task models.Task) {
	taskCtx := p.logg.WithFields(ctx, map[string]any{
		"task_id":   task.ID.String(),
		"task_kind": task.Kind.String(),
		"attempt":   task.Attempts,
	})
	if task.TransferID != nil {
		taskCtx = p.logg.WithField(taskCtx, "transfer_id", task.TransferID.String())
	}

	handler, ok := p.registry.Lookup(task.Kind)
	if !ok {
		p.fail(taskCtx, task, nil, pkgerrors.New(pkgerrors.CodeInternal, "no handler registered"))
		return
	}

	if task.Attempts > task.MaxAttempts {
		cause := pkgerrors.New(pkgerrors.CodeGatewayTerminal, "retries exhausted")
		if task.LastError != nil {
			cause = pkgerrors.Wrap(pkgerrors.CodeGatewayTerminal, errors.New(*task.LastError), "retries exhausted")
		}
		p.fail(taskCtx, task, handler, cause)
		return
	}

	err := handler.Handle(taskCtx, task)
	if err == nil {
		if markErr := p.repo.MarkSucceeded(taskCtx, task.ID, p.clock.Now()); markErr != nil {
			p.logg.Error(taskCtx, "mark task succeeded failed", markErr)
		}
		p.metrics.IncTask(task.Kind.String(), "succeeded")
		return
	}

	if retryable(err) && task.Attempts < task.MaxAttempts {
		runAfter := p.clock.Now().Add(task.Backoff())
		if markErr := p.repo.Reschedule(taskCtx, task.ID, runAfter, err.Error()); markErr != nil {
			p.logg.Error(taskCtx, "reschedule task failed", markErr)
		}
		p.logg.Warn(p.logg.WithField(taskCtx, "error", err.Error()), "task rescheduled after transient failure")
		p.metrics.IncTask(task.Kind.String(), "retried")
		return
	}

	cause := err
	if retryable(err) {
		cause = pkgerrors.Wrap(pkgerrors.CodeGatewayTerminal, err, fmt.Sprintf("gave up after %d attempts", task.Attempts))
	}
	p.fail(taskCtx, task, handler, cause)
}

func (p *Pool) fail(ctx context.Context, task models.Task, handler Handler, cause error) {
	if terminal, ok := handler.(TerminalHandler); ok {
		if err := terminal.OnTerminal(ctx, task, cause); err != nil {
			// The terminal hook must run; keep the task around so it is retried.
			p.logg.Error(ctx, "terminal handler failed", err)
			if markErr := p.repo.Reschedule(ctx, task.ID, p.clock.Now().Add(task.Backoff()), cause.Error()); markErr != nil {
				p.logg.Error(ctx, "reschedule task failed", markErr)
			}
			return
		}
	}
	if err := p.repo.MarkFailed(ctx, task.ID, cause.Error(), p.clock.Now()); err != nil {
		p.logg.Error(ctx, "mark task failed failed", err)
	}
	p.logg.Error(ctx, "task failed", cause)
	p.metrics.IncTask(task.Kind.String(), "failed")
}

func retryable(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeGatewayTransient) || pkgerrors.IsCode(err, pkgerrors.CodeDependency)
}
