package loans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/internal/repo"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
)

// Repository persists soft loans and the per-cycle loan totals.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) Create(ctx context.Context, loan *models.SoftLoan) error {
	return r.DB(ctx).Create(loan).Error
}

func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*models.SoftLoan, error) {
	var loan models.SoftLoan
	if err := r.DB(ctx).Where("id = ?", id).First(&loan).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *Repository) Lock(ctx context.Context, id uuid.UUID) (*models.SoftLoan, error) {
	var loan models.SoftLoan
	if err := r.Locked(ctx).
		Where("id = ?", id).
		First(&loan).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// Save writes every mutable loan column.
func (r *Repository) Save(ctx context.Context, loan *models.SoftLoan, at time.Time) error {
	var repayBy any
	if loan.ExpectedRepaymentDate != nil {
		repayBy = loan.ExpectedRepaymentDate.UTC()
	}
	return r.DB(ctx).Model(&models.SoftLoan{}).
		Where("id = ?", loan.ID).
		Updates(map[string]any{
			"standing_balance":        loan.StandingBalance,
			"expected_interest":       loan.ExpectedInterest,
			"total_required":          loan.TotalRequired,
			"total_repaid":            loan.TotalRepaid,
			"missed_payments":         loan.MissedPayments,
			"state":                   loan.State,
			"expected_repayment_date": repayBy,
			"approved_at":             loan.ApprovedAt,
			"cleared_at":              loan.ClearedAt,
			"updated_at":              at.UTC(),
		}).Error
}

// ListOpenByMember returns loans of memberID that are awaiting approval or active.
func (r *Repository) ListOpenByMember(ctx context.Context, activityID, memberID uuid.UUID) ([]models.SoftLoan, error) {
	var rows []models.SoftLoan
	states := append([]enums.LoanState{enums.LoanStateAwaitingApproval}, enums.ActiveLoanStates()...)
	err := r.DB(ctx).
		Where("activity_id = ? AND member_id = ? AND state IN ?", activityID, memberID, states).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) ListByActivity(ctx context.Context, activityID uuid.UUID) ([]models.SoftLoan, error) {
	var rows []models.SoftLoan
	err := r.DB(ctx).
		Where("activity_id = ?", activityID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// ListDue returns active loans whose repayment date is before cutoff.
func (r *Repository) ListDue(ctx context.Context, activityID uuid.UUID, cutoff time.Time) ([]models.SoftLoan, error) {
	var rows []models.SoftLoan
	err := r.Locked(ctx).
		Where("activity_id = ? AND state IN ? AND expected_repayment_date < ?", activityID, enums.ActiveLoanStates(), cutoff.UTC()).
		Order("expected_repayment_date ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// LockTotals locks the loan totals of cycle. The row must exist.
func (r *Repository) LockTotals(ctx context.Context, activityID uuid.UUID, cycle int) (*models.LoanManagement, error) {
	var totals models.LoanManagement
	if err := r.Locked(ctx).
		Where("activity_id = ? AND cycle_number = ?", activityID, cycle).
		First(&totals).Error; err != nil {
		return nil, err
	}
	return &totals, nil
}

func (r *Repository) FindTotals(ctx context.Context, activityID uuid.UUID, cycle int) (*models.LoanManagement, error) {
	var totals models.LoanManagement
	if err := r.DB(ctx).
		Where("activity_id = ? AND cycle_number = ?", activityID, cycle).
		First(&totals).Error; err != nil {
		return nil, err
	}
	return &totals, nil
}

func (r *Repository) SaveTotals(ctx context.Context, totals *models.LoanManagement, at time.Time) error {
	return r.DB(ctx).Model(&models.LoanManagement{}).
		Where("id = ?", totals.ID).
		Updates(map[string]any{
			"total_loans_taken": totals.TotalLoansTaken,
			"unpaid_loans":      totals.UnpaidLoans,
			"unpaid_interest":   totals.UnpaidInterest,
			"repaid_loans":      totals.RepaidLoans,
			"repaid_interest":   totals.RepaidInterest,
			"updated_at":        at.UTC(),
		}).Error
}

// HasActive reports whether memberID holds an approved or overdue loan in the activity.
func (r *Repository) HasActive(ctx context.Context, activityID, memberID uuid.UUID) (bool, error) {
	var n int64
	err := r.DB(ctx).Model(&models.SoftLoan{}).
		Where("activity_id = ? AND member_id = ? AND state IN ?", activityID, memberID, enums.ActiveLoanStates()).
		Count(&n).Error
	return n > 0, err
}
