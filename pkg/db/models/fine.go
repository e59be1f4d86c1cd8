package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/enums"
)

type Fine struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ActivityID  uuid.UUID        `gorm:"column:activity_id;type:uuid;not null;index"`
	MemberID    uuid.UUID        `gorm:"column:member_id;type:uuid;not null;index"`
	CycleNumber int              `gorm:"column:cycle_number;not null"`
	Amount      decimal.Decimal  `gorm:"column:amount;type:numeric(14,2);not null"`
	Reason      string           `gorm:"column:reason;not null"`
	IssuedFor   *time.Time       `gorm:"column:issued_for"`
	Status      enums.FineStatus `gorm:"column:status;type:fine_status_enum;not null"`
	TransferID  *uuid.UUID       `gorm:"column:transfer_id;type:uuid"`
	PaidAt      *time.Time       `gorm:"column:paid_at"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (f *Fine) BeforeCreate(*gorm.DB) error {
	ensureID(&f.ID)
	return nil
}
