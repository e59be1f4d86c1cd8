package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/enums"
)

// LedgerEntry is one leg of a journal. A nil AccountID is the external gateway leg.
type LedgerEntry struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	JournalID    uuid.UUID            `gorm:"column:journal_id;type:uuid;not null;index"`
	AccountID    *uuid.UUID           `gorm:"column:account_id;type:uuid;index"`
	Direction    enums.EntryDirection `gorm:"column:direction;type:entry_direction_enum;not null"`
	Amount       decimal.Decimal      `gorm:"column:amount;type:numeric(14,2);not null"`
	BalanceAfter *decimal.Decimal     `gorm:"column:balance_after;type:numeric(14,2)"`
	TransferID   *uuid.UUID           `gorm:"column:transfer_id;type:uuid;index"`
	Note         string               `gorm:"column:note;not null"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
