package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/enums"
)

// Account holds one balance in the account store. The platform account is owned by uuid.Nil.
type Account struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Kind      enums.AccountKind `gorm:"column:kind;type:account_kind_enum;not null;uniqueIndex:ux_accounts_kind_owner,priority:1"`
	OwnerID   uuid.UUID         `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:ux_accounts_kind_owner,priority:2"`
	Balance   decimal.Decimal   `gorm:"column:balance;type:numeric(14,2);not null"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Account) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
