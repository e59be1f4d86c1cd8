package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/enums"
)

// Task is a queued unit of background work with its retry policy stored alongside it.
type Task struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Kind           enums.TaskKind   `gorm:"column:kind;not null"`
	Payload        json.RawMessage  `gorm:"column:payload;type:jsonb;not null"`
	Status         enums.TaskStatus `gorm:"column:status;type:task_status_enum;not null;index"`
	Attempts       int              `gorm:"column:attempts;not null;default:0"`
	MaxAttempts    int              `gorm:"column:max_attempts;not null"`
	BackoffSeconds int              `gorm:"column:backoff_seconds;not null"`
	RunAfter       time.Time        `gorm:"column:run_after;not null;index"`
	TransferID     *uuid.UUID       `gorm:"column:transfer_id;type:uuid"`
	LastError      *string          `gorm:"column:last_error"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Task) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// Backoff returns the fixed delay between attempts.
func (t Task) Backoff() time.Duration {
	return time.Duration(t.BackoffSeconds) * time.Second
}
