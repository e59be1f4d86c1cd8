package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/config"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 60 * time.Second
)

// Spec describes a task to enqueue. Zero retry fields fall back to the queue policy.
type Spec struct {
	Kind        enums.TaskKind
	Payload     any
	TransferID  *uuid.UUID
	MaxAttempts int
	Backoff     time.Duration
	RunAfter    time.Time
}

// Queue writes tasks inside the caller's transaction so a task exists only if the
// unit that created it commits.
type Queue struct {
	repo        Repository
	clock       clock.Clock
	maxAttempts int
	backoff     time.Duration
}

// NewQueue builds a queue with the gateway retry policy as its default.
func NewQueue(repo Repository, cfg config.GatewayConfig, clk clock.Clock) (*Queue, error) {
	if repo == nil {
		return nil, fmt.Errorf("task repository required")
	}
	if clk == nil {
		clk = clock.System()
	}
	q := &Queue{repo: repo, clock: clk, maxAttempts: cfg.RetryAttempts, backoff: cfg.RetryBackoff}
	if q.maxAttempts <= 0 {
		q.maxAttempts = defaultMaxAttempts
	}
	if q.backoff <= 0 {
		q.backoff = defaultBackoff
	}
	return q, nil
}

// Enqueue persists spec using tx.
func (q *Queue) Enqueue(ctx context.Context, tx *gorm.DB, spec Spec) (*models.Task, error) {
	if !spec.Kind.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "unknown task kind %q", spec.Kind)
	}
	payload, err := json.Marshal(spec.Payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal task payload")
	}
	task := &models.Task{
		Kind:           spec.Kind,
		Payload:        payload,
		Status:         enums.TaskStatusPending,
		MaxAttempts:    spec.MaxAttempts,
		BackoffSeconds: int(spec.Backoff / time.Second),
		RunAfter:       spec.RunAfter.UTC(),
		TransferID:     spec.TransferID,
	}
	if task.MaxAttempts <= 0 {
		task.MaxAttempts = q.maxAttempts
	}
	if task.BackoffSeconds <= 0 {
		task.BackoffSeconds = int(q.backoff / time.Second)
	}
	if spec.RunAfter.IsZero() {
		task.RunAfter = q.clock.Now().UTC()
	}
	if err := q.repo.WithTx(tx).Create(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", spec.Kind, err)
	}
	return task, nil
}
