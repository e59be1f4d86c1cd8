package activities

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/chama-backend/internal/repo"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
)

// Repository persists members, groups, activities and enrolments.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) CreateMember(ctx context.Context, member *models.Member) error {
	return r.DB(ctx).Create(member).Error
}

func (r *Repository) FindMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var member models.Member
	if err := r.DB(ctx).Where("id = ?", id).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *Repository) FindMemberByPhone(ctx context.Context, phone string) (*models.Member, error) {
	var member models.Member
	if err := r.DB(ctx).Where("phone = ?", phone).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *Repository) CreateGroup(ctx context.Context, group *models.Group) error {
	return r.DB(ctx).Create(group).Error
}

func (r *Repository) FindGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	var group models.Group
	if err := r.DB(ctx).Where("id = ?", id).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *Repository) AddGroupMember(ctx context.Context, link *models.GroupMember) error {
	return r.DB(ctx).Create(link).Error
}

func (r *Repository) FindGroupMember(ctx context.Context, groupID, memberID uuid.UUID) (*models.GroupMember, error) {
	var link models.GroupMember
	if err := r.DB(ctx).
		Where("group_id = ? AND member_id = ?", groupID, memberID).
		First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *Repository) MarkRegistrationFeePaid(ctx context.Context, groupID, memberID uuid.UUID) error {
	res := r.DB(ctx).Model(&models.GroupMember{}).
		Where("group_id = ? AND member_id = ?", groupID, memberID).
		Update("registration_fee_paid", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) CreateActivity(ctx context.Context, activity *models.Activity) error {
	return r.DB(ctx).Create(activity).Error
}

func (r *Repository) FindActivity(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	var activity models.Activity
	if err := r.DB(ctx).Where("id = ?", id).First(&activity).Error; err != nil {
		return nil, err
	}
	return &activity, nil
}

// LockActivity takes the activity row lock that serialises cycle changes.
func (r *Repository) LockActivity(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	var activity models.Activity
	if err := r.Locked(ctx).
		Where("id = ?", id).
		First(&activity).Error; err != nil {
		return nil, err
	}
	return &activity, nil
}

// ListActive returns every active activity id ordered by creation.
func (r *Repository) ListActive(ctx context.Context) ([]models.Activity, error) {
	var rows []models.Activity
	err := r.DB(ctx).Where("active = ?", true).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

// AdvanceCycle moves the activity to cycle and records the next dates.
func (r *Repository) AdvanceCycle(ctx context.Context, id uuid.UUID, cycle int, nextContribution time.Time, nextDividend *time.Time) error {
	updates := map[string]any{
		"cycle_number":           cycle,
		"next_contribution_date": nextContribution.UTC(),
		"next_dividend_date":     nil,
	}
	if nextDividend != nil {
		updates["next_dividend_date"] = nextDividend.UTC()
	}
	return r.DB(ctx).Model(&models.Activity{}).Where("id = ?", id).Updates(updates).Error
}

func (r *Repository) SetNextContributionDate(ctx context.Context, id uuid.UUID, next time.Time) error {
	return r.DB(ctx).Model(&models.Activity{}).
		Where("id = ?", id).
		Update("next_contribution_date", next.UTC()).Error
}

func (r *Repository) AddActivityMember(ctx context.Context, member *models.ActivityMember) error {
	return r.DB(ctx).Create(member).Error
}

func (r *Repository) FindActivityMember(ctx context.Context, activityID, memberID uuid.UUID) (*models.ActivityMember, error) {
	var member models.ActivityMember
	if err := r.DB(ctx).
		Where("activity_id = ? AND member_id = ?", activityID, memberID).
		First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// ListActiveMembers returns enrolments in join order.
func (r *Repository) ListActiveMembers(ctx context.Context, activityID uuid.UUID) ([]models.ActivityMember, error) {
	var rows []models.ActivityMember
	err := r.DB(ctx).
		Where("activity_id = ? AND active = ?", activityID, true).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) SetMemberActive(ctx context.Context, activityID, memberID uuid.UUID, active bool) error {
	return r.DB(ctx).Model(&models.ActivityMember{}).
		Where("activity_id = ? AND member_id = ?", activityID, memberID).
		Update("active", active).Error
}

// OpenCycle creates the zeroed dividend pool and loan totals for cycle. Existing
// rows are left as they are.
func (r *Repository) OpenCycle(ctx context.Context, activityID uuid.UUID, cycle int) error {
	pool := &models.DividendPool{
		ActivityID:      activityID,
		CycleNumber:     cycle,
		UnpaidDividends: decimal.Zero,
		PaidDividends:   decimal.Zero,
	}
	if err := r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(pool).Error; err != nil {
		return err
	}
	totals := &models.LoanManagement{
		ActivityID:      activityID,
		CycleNumber:     cycle,
		TotalLoansTaken: decimal.Zero,
		UnpaidLoans:     decimal.Zero,
		UnpaidInterest:  decimal.Zero,
		RepaidLoans:     decimal.Zero,
		RepaidInterest:  decimal.Zero,
	}
	return r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(totals).Error
}

// LockDividendPool locks the pool row of cycle, creating it if needed.
func (r *Repository) LockDividendPool(ctx context.Context, activityID uuid.UUID, cycle int) (*models.DividendPool, error) {
	if err := r.OpenCycle(ctx, activityID, cycle); err != nil {
		return nil, err
	}
	var pool models.DividendPool
	if err := r.Locked(ctx).
		Where("activity_id = ? AND cycle_number = ?", activityID, cycle).
		First(&pool).Error; err != nil {
		return nil, err
	}
	return &pool, nil
}

func (r *Repository) FindDividendPool(ctx context.Context, activityID uuid.UUID, cycle int) (*models.DividendPool, error) {
	var pool models.DividendPool
	if err := r.DB(ctx).
		Where("activity_id = ? AND cycle_number = ?", activityID, cycle).
		First(&pool).Error; err != nil {
		return nil, err
	}
	return &pool, nil
}

// SaveDividendPool writes back the pool balances of a locked row.
func (r *Repository) SaveDividendPool(ctx context.Context, pool *models.DividendPool, at time.Time) error {
	return r.DB(ctx).Model(&models.DividendPool{}).
		Where("id = ?", pool.ID).
		Updates(map[string]any{
			"unpaid_dividends": pool.UnpaidDividends,
			"paid_dividends":   pool.PaidDividends,
			"distributed_at":   pool.DistributedAt,
			"updated_at":       at.UTC(),
		}).Error
}

// CreditDividendPool adds collected interest or fines to cycle's unpaid dividends.
func (r *Repository) CreditDividendPool(ctx context.Context, activityID uuid.UUID, cycle int, amount decimal.Decimal, at time.Time) (*models.DividendPool, error) {
	pool, err := r.LockDividendPool(ctx, activityID, cycle)
	if err != nil {
		return nil, err
	}
	pool.UnpaidDividends = pool.UnpaidDividends.Add(amount)
	if err := r.SaveDividendPool(ctx, pool, at); err != nil {
		return nil, err
	}
	return pool, nil
}
