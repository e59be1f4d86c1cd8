package fines

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/internal/repo"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
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

func (r *Repository) Create(ctx context.Context, fine *models.Fine) error {
	if fine.IssuedFor != nil {
		at := fine.IssuedFor.UTC()
		fine.IssuedFor = &at
	}
	return r.DB(ctx).Create(fine).Error
}

func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*models.Fine, error) {
	var fine models.Fine
	if err := r.DB(ctx).Where("id = ?", id).First(&fine).Error; err != nil {
		return nil, err
	}
	return &fine, nil
}

func (r *Repository) Lock(ctx context.Context, id uuid.UUID) (*models.Fine, error) {
	var fine models.Fine
	if err := r.Locked(ctx).
		Where("id = ?", id).
		First(&fine).Error; err != nil {
		return nil, err
	}
	return &fine, nil
}

func (r *Repository) MarkPaid(ctx context.Context, id, transferID uuid.UUID, at time.Time) error {
	return r.DB(ctx).Model(&models.Fine{}).
		Where("id = ? AND status = ?", id, enums.FineStatusUnpaid).
		Updates(map[string]any{
			"status":      enums.FineStatusPaid,
			"transfer_id": transferID,
			"paid_at":     at.UTC(),
		}).Error
}

// IssuedFor reports whether memberID was already fined for the contribution date.
func (r *Repository) IssuedFor(ctx context.Context, activityID, memberID uuid.UUID, date time.Time) (bool, error) {
	var n int64
	err := r.DB(ctx).Model(&models.Fine{}).
		Where("activity_id = ? AND member_id = ? AND issued_for = ?", activityID, memberID, date.UTC()).
		Count(&n).Error
	return n > 0, err
}

func (r *Repository) ListByActivity(ctx context.Context, activityID uuid.UUID, status enums.FineStatus) ([]models.Fine, error) {
	var rows []models.Fine
	q := r.DB(ctx).Where("activity_id = ?", activityID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at ASC, id ASC").Find(&rows).Error
	return rows, err
}

// HasUnpaid reports whether memberID owes any fine in the activity.
func (r *Repository) HasUnpaid(ctx context.Context, activityID, memberID uuid.UUID) (bool, error) {
	var n int64
	err := r.DB(ctx).Model(&models.Fine{}).
		Where("activity_id = ? AND member_id = ? AND status = ?", activityID, memberID, enums.FineStatusUnpaid).
		Count(&n).Error
	return n > 0, err
}
