package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DividendPool collects loan interest and fines for one activity cycle.
type DividendPool struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ActivityID      uuid.UUID       `gorm:"column:activity_id;type:uuid;not null;uniqueIndex:ux_dividend_pools,priority:1"`
	CycleNumber     int             `gorm:"column:cycle_number;not null;uniqueIndex:ux_dividend_pools,priority:2"`
	UnpaidDividends decimal.Decimal `gorm:"column:unpaid_dividends;type:numeric(14,2);not null"`
	PaidDividends   decimal.Decimal `gorm:"column:paid_dividends;type:numeric(14,2);not null"`
	DistributedAt   *time.Time      `gorm:"column:distributed_at"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *DividendPool) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Disbursement is one member's payout from a dividend round.
type Disbursement struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ActivityID      uuid.UUID       `gorm:"column:activity_id;type:uuid;not null;index"`
	CycleNumber     int             `gorm:"column:cycle_number;not null"`
	MemberID        uuid.UUID       `gorm:"column:member_id;type:uuid;not null"`
	Shares          int             `gorm:"column:shares;not null"`
	DividendAmount  decimal.Decimal `gorm:"column:dividend_amount;type:numeric(14,2);not null"`
	PrincipalAmount decimal.Decimal `gorm:"column:principal_amount;type:numeric(14,2);not null"`
	TransferID      uuid.UUID       `gorm:"column:transfer_id;type:uuid;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (d *Disbursement) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

// Total is the amount credited to the member's wallet.
func (d Disbursement) Total() decimal.Decimal {
	return d.DividendAmount.Add(d.PrincipalAmount)
}
