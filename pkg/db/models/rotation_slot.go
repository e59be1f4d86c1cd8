package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RotationSlot is one dated payout seat in a merry-go-round cycle.
type RotationSlot struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ActivityID      uuid.UUID       `gorm:"column:activity_id;type:uuid;not null;uniqueIndex:ux_rotation_order,priority:1"`
	CycleNumber     int             `gorm:"column:cycle_number;not null;uniqueIndex:ux_rotation_order,priority:2"`
	OrderInRotation int             `gorm:"column:order_in_rotation;not null;uniqueIndex:ux_rotation_order,priority:3"`
	RecipientID     uuid.UUID       `gorm:"column:recipient_id;type:uuid;not null"`
	ReceivingDate   time.Time       `gorm:"column:receiving_date;not null"`
	ExpectedAmount  decimal.Decimal `gorm:"column:expected_amount;type:numeric(14,2);not null"`
	ReceivedAmount  decimal.Decimal `gorm:"column:received_amount;type:numeric(14,2);not null"`
	Fulfilled       bool            `gorm:"column:fulfilled;not null;default:false"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *RotationSlot) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
