package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/enums"
)

// SoftLoan keeps TotalRequired == StandingBalance + ExpectedInterest after every mutation.
type SoftLoan struct {
	ID                    uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ActivityID            uuid.UUID       `gorm:"column:activity_id;type:uuid;not null;index"`
	MemberID              uuid.UUID       `gorm:"column:member_id;type:uuid;not null;index"`
	CycleNumber           int             `gorm:"column:cycle_number;not null"`
	PrincipalRequested    decimal.Decimal `gorm:"column:principal_requested;type:numeric(14,2);not null"`
	StandingBalance       decimal.Decimal `gorm:"column:standing_balance;type:numeric(14,2);not null"`
	ExpectedInterest      decimal.Decimal `gorm:"column:expected_interest;type:numeric(14,2);not null"`
	TotalRequired         decimal.Decimal `gorm:"column:total_required;type:numeric(14,2);not null"`
	TotalRepaid           decimal.Decimal `gorm:"column:total_repaid;type:numeric(14,2);not null"`
	InterestRate          decimal.Decimal `gorm:"column:interest_rate;type:numeric(6,2);not null"`
	MissedPayments        int             `gorm:"column:missed_payments;not null;default:0"`
	State                 enums.LoanState `gorm:"column:state;type:loan_state_enum;not null;index"`
	ExpectedRepaymentDate *time.Time      `gorm:"column:expected_repayment_date"`
	ApprovedAt            *time.Time      `gorm:"column:approved_at"`
	ClearedAt             *time.Time      `gorm:"column:cleared_at"`
	CreatedAt             time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *SoftLoan) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// LoanManagement aggregates loan totals per activity per cycle.
type LoanManagement struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ActivityID      uuid.UUID       `gorm:"column:activity_id;type:uuid;not null;uniqueIndex:ux_loan_management,priority:1"`
	CycleNumber     int             `gorm:"column:cycle_number;not null;uniqueIndex:ux_loan_management,priority:2"`
	TotalLoansTaken decimal.Decimal `gorm:"column:total_loans_taken;type:numeric(14,2);not null"`
	UnpaidLoans     decimal.Decimal `gorm:"column:unpaid_loans;type:numeric(14,2);not null"`
	UnpaidInterest  decimal.Decimal `gorm:"column:unpaid_interest;type:numeric(14,2);not null"`
	RepaidLoans     decimal.Decimal `gorm:"column:repaid_loans;type:numeric(14,2);not null"`
	RepaidInterest  decimal.Decimal `gorm:"column:repaid_interest;type:numeric(14,2);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *LoanManagement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
