package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
)

// Repository persists queued tasks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, task *models.Task) error
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.Task, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, at time.Time) error
	Reschedule(ctx context.Context, id uuid.UUID, runAfter time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastErr string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a task repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// ClaimDue marks up to limit due tasks as running and pushes their run_after out
// by lease, so a crashed worker's tasks become claimable again once it lapses.
func (r *repository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.Task, error) {
	now = now.UTC()
	var claimed []models.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []models.Task
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ? AND run_after <= ?", []enums.TaskStatus{enums.TaskStatusPending, enums.TaskStatusRunning}, now).
			Order("run_after ASC").
			Limit(limit).
			Find(&due).Error; err != nil {
			return err
		}
		for i := range due {
			due[i].Status = enums.TaskStatusRunning
			due[i].Attempts++
			due[i].RunAfter = now.Add(lease)
			if err := tx.Model(&models.Task{}).
				Where("id = ?", due[i].ID).
				Updates(map[string]any{
					"status":     due[i].Status,
					"attempts":   due[i].Attempts,
					"run_after":  due[i].RunAfter,
					"updated_at": now,
				}).Error; err != nil {
				return err
			}
		}
		claimed = due
		return nil
	})
	return claimed, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *repository) MarkSucceeded(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.TaskStatusSucceeded,
			"last_error": nil,
			"updated_at": at,
		}).Error
}

func (r *repository) Reschedule(ctx context.Context, id uuid.UUID, runAfter time.Time, lastErr string) error {
	return r.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.TaskStatusPending,
			"run_after":  runAfter.UTC(),
			"last_error": lastErr,
		}).Error
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, lastErr string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.TaskStatusFailed,
			"last_error": lastErr,
			"updated_at": at,
		}).Error
}
