package rotation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/internal/repo"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
)

// Repository persists rotation slots.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) CreateSlots(ctx context.Context, slots []models.RotationSlot) error {
	if len(slots) == 0 {
		return nil
	}
	for i := range slots {
		slots[i].ReceivingDate = slots[i].ReceivingDate.UTC()
	}
	return r.DB(ctx).Create(&slots).Error
}

// ListSlots returns a cycle's slots by order_in_rotation.
func (r *Repository) ListSlots(ctx context.Context, activityID uuid.UUID, cycle int) ([]models.RotationSlot, error) {
	var slots []models.RotationSlot
	err := r.DB(ctx).
		Where("activity_id = ? AND cycle_number = ?", activityID, cycle).
		Order("order_in_rotation ASC").
		Find(&slots).Error
	return slots, err
}

// LockSlots is ListSlots under FOR UPDATE.
func (r *Repository) LockSlots(ctx context.Context, activityID uuid.UUID, cycle int) ([]models.RotationSlot, error) {
	var slots []models.RotationSlot
	err := r.Locked(ctx).
		Where("activity_id = ? AND cycle_number = ?", activityID, cycle).
		Order("order_in_rotation ASC").
		Find(&slots).Error
	return slots, err
}

func (r *Repository) CountSlots(ctx context.Context, activityID uuid.UUID, cycle int) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.RotationSlot{}).
		Where("activity_id = ? AND cycle_number = ?", activityID, cycle).
		Count(&n).Error
	return n, err
}

func (r *Repository) SetRecipient(ctx context.Context, slotID, recipientID uuid.UUID, at time.Time) error {
	return r.DB(ctx).Model(&models.RotationSlot{}).
		Where("id = ?", slotID).
		Updates(map[string]any{"recipient_id": recipientID, "updated_at": at.UTC()}).Error
}

// RecordPayout stores the new received total and fulfilment flag.
func (r *Repository) RecordPayout(ctx context.Context, slotID uuid.UUID, received decimal.Decimal, fulfilled bool, at time.Time) error {
	return r.DB(ctx).Model(&models.RotationSlot{}).
		Where("id = ?", slotID).
		Updates(map[string]any{
			"received_amount": received,
			"fulfilled":       fulfilled,
			"updated_at":      at.UTC(),
		}).Error
}
