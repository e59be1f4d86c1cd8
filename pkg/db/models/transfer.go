package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/enums"
)

// Transfer is a pending-transfer ledger row. IdempotencyCode starts as the derived
// request code, becomes the gateway request id once initiated and the receipt on completion.
type Transfer struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	RequestCode     string               `gorm:"column:request_code;not null;uniqueIndex"`
	IdempotencyCode string               `gorm:"column:idempotency_code;not null;uniqueIndex"`
	GatewayRef      *string              `gorm:"column:gateway_ref"`
	ReceiptCode     *string              `gorm:"column:receipt_code"`
	Kind            enums.TransferKind   `gorm:"column:kind;type:transfer_kind_enum;not null"`
	Status          enums.TransferStatus `gorm:"column:status;type:transfer_status_enum;not null;index"`
	Amount          decimal.Decimal      `gorm:"column:amount;type:numeric(14,2);not null"`
	Origin          string               `gorm:"column:origin;not null"`
	Destination     string               `gorm:"column:destination;not null"`
	MemberID        *uuid.UUID           `gorm:"column:member_id;type:uuid;index"`
	GroupID         *uuid.UUID           `gorm:"column:group_id;type:uuid"`
	ActivityID      *uuid.UUID           `gorm:"column:activity_id;type:uuid"`
	Note            string               `gorm:"column:note"`
	PollAttempts    int                  `gorm:"column:poll_attempts;not null;default:0"`
	FailureReason   *string              `gorm:"column:failure_reason"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt     *time.Time           `gorm:"column:completed_at"`
}

func (t *Transfer) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
