package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Contribution records money paid into an activity for one contribution date.
type Contribution struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ActivityID       uuid.UUID       `gorm:"column:activity_id;type:uuid;not null;index"`
	MemberID         uuid.UUID       `gorm:"column:member_id;type:uuid;not null;index"`
	CycleNumber      int             `gorm:"column:cycle_number;not null"`
	ContributionDate time.Time       `gorm:"column:contribution_date;not null"`
	RecipientID      *uuid.UUID      `gorm:"column:recipient_id;type:uuid"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	TransferID       uuid.UUID       `gorm:"column:transfer_id;type:uuid;not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (c *Contribution) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
