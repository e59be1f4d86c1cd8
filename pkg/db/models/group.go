package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/enums"
)

type Group struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name            string          `gorm:"column:name;not null"`
	RegistrationFee decimal.Decimal `gorm:"column:registration_fee;type:numeric(14,2);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (g *Group) BeforeCreate(*gorm.DB) error {
	ensureID(&g.ID)
	return nil
}

// GroupMember links a member to a group with a role.
type GroupMember struct {
	ID                  uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	GroupID             uuid.UUID        `gorm:"column:group_id;type:uuid;not null;uniqueIndex:ux_group_members,priority:1"`
	MemberID            uuid.UUID        `gorm:"column:member_id;type:uuid;not null;uniqueIndex:ux_group_members,priority:2"`
	Role                enums.MemberRole `gorm:"column:role;not null"`
	RegistrationFeePaid bool             `gorm:"column:registration_fee_paid;not null;default:false"`
	CreatedAt           time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (g *GroupMember) BeforeCreate(*gorm.DB) error {
	ensureID(&g.ID)
	return nil
}
