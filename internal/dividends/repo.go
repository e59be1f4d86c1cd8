package dividends

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/internal/repo"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
)

type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) CreateDisbursements(ctx context.Context, rows []models.Disbursement) error {
	if len(rows) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&rows).Error
}

func (r *Repository) ListDisbursements(ctx context.Context, activityID uuid.UUID, cycle int) ([]models.Disbursement, error) {
	var rows []models.Disbursement
	err := r.DB(ctx).
		Where("activity_id = ? AND cycle_number = ?", activityID, cycle).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}
