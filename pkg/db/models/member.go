package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Member is a person with a wallet; Phone is stored in the 2547XXXXXXXX form.
type Member struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Phone     string    `gorm:"column:phone;not null;uniqueIndex"`
	FullName  string    `gorm:"column:full_name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (m *Member) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
