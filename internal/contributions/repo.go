package contributions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/internal/repo"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
)

// Repository persists contributions. Dates are the civil contribution date
// stored as its UTC instant.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) Create(ctx context.Context, contribution *models.Contribution) error {
	contribution.ContributionDate = contribution.ContributionDate.UTC()
	return r.DB(ctx).Create(contribution).Error
}

// ListForDate returns the contributions recorded against one contribution date.
func (r *Repository) ListForDate(ctx context.Context, activityID uuid.UUID, cycle int, date time.Time) ([]models.Contribution, error) {
	var rows []models.Contribution
	err := r.DB(ctx).
		Where("activity_id = ? AND cycle_number = ? AND contribution_date = ?", activityID, cycle, date.UTC()).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// SumForDate totals the contributions recorded against one contribution date.
func (r *Repository) SumForDate(ctx context.Context, activityID uuid.UUID, cycle int, date time.Time) (decimal.Decimal, error) {
	rows, err := r.ListForDate(ctx, activityID, cycle, date)
	if err != nil {
		return decimal.Zero, err
	}
	return sum(rows), nil
}

// SumForMember totals what memberID paid into the activity during cycle.
func (r *Repository) SumForMember(ctx context.Context, activityID uuid.UUID, cycle int, memberID uuid.UUID) (decimal.Decimal, error) {
	var rows []models.Contribution
	if err := r.DB(ctx).
		Where("activity_id = ? AND cycle_number = ? AND member_id = ?", activityID, cycle, memberID).
		Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}
	return sum(rows), nil
}

// PaidOn reports what memberID contributed for date.
func (r *Repository) PaidOn(ctx context.Context, activityID, memberID uuid.UUID, date time.Time) (decimal.Decimal, error) {
	var rows []models.Contribution
	if err := r.DB(ctx).
		Where("activity_id = ? AND member_id = ? AND contribution_date = ?", activityID, memberID, date.UTC()).
		Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}
	return sum(rows), nil
}

// Reattribute points every contribution for date at a new rotation recipient.
func (r *Repository) Reattribute(ctx context.Context, activityID uuid.UUID, cycle int, date time.Time, recipientID uuid.UUID) (int64, error) {
	res := r.DB(ctx).Model(&models.Contribution{}).
		Where("activity_id = ? AND cycle_number = ? AND contribution_date = ?", activityID, cycle, date.UTC()).
		Update("recipient_id", recipientID)
	return res.RowsAffected, res.Error
}

// LatestDate returns the most recent contribution date with any money recorded
// in cycle, or false when nothing has been paid yet.
func (r *Repository) LatestDate(ctx context.Context, activityID uuid.UUID, cycle int) (time.Time, bool, error) {
	var rows []models.Contribution
	if err := r.DB(ctx).
		Where("activity_id = ? AND cycle_number = ?", activityID, cycle).
		Order("contribution_date DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return time.Time{}, false, err
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[0].ContributionDate, true, nil
}

// SlotRecipient returns the rotation recipient scheduled for date, if any.
func (r *Repository) SlotRecipient(ctx context.Context, activityID uuid.UUID, cycle int, date time.Time) (*uuid.UUID, error) {
	var slots []models.RotationSlot
	if err := r.DB(ctx).
		Where("activity_id = ? AND cycle_number = ? AND receiving_date = ?", activityID, cycle, date.UTC()).
		Limit(1).
		Find(&slots).Error; err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}
	id := slots[0].RecipientID
	return &id, nil
}

func sum(rows []models.Contribution) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}
	return total
}
