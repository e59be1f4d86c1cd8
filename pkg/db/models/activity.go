package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/enums"
)

// Activity is one savings, rotation or table-banking programme inside a group.
type Activity struct {
	ID                    uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	GroupID               uuid.UUID                  `gorm:"column:group_id;type:uuid;not null;index"`
	Name                  string                     `gorm:"column:name;not null"`
	Type                  enums.ActivityType         `gorm:"column:type;type:activity_type_enum;not null"`
	Interval              enums.ContributionInterval `gorm:"column:contribution_interval;type:contribution_interval_enum;not null"`
	IntervalDays          int                        `gorm:"column:interval_days;not null;default:0"`
	ContributionAmount    decimal.Decimal            `gorm:"column:contribution_amount;type:numeric(14,2);not null"`
	FirstContributionDate time.Time                  `gorm:"column:first_contribution_date;not null"`
	NextContributionDate  time.Time                  `gorm:"column:next_contribution_date;not null"`
	LoanInterestRate      decimal.Decimal            `gorm:"column:loan_interest_rate;type:numeric(6,2);not null"`
	RequiresApproval      bool                       `gorm:"column:requires_approval;not null;default:false"`
	LateFine              decimal.Decimal            `gorm:"column:late_fine;type:numeric(14,2);not null"`
	DividendMode          enums.DividendMode         `gorm:"column:dividend_mode;not null"`
	NextDividendDate      *time.Time                 `gorm:"column:next_dividend_date"`
	CycleNumber           int                        `gorm:"column:cycle_number;not null;default:1"`
	Active                bool                       `gorm:"column:active;not null;default:true"`
	CreatedAt             time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Activity) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// ActivityMember is a member's enrolment in an activity; Shares drives rotation seats and dividends.
type ActivityMember struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ActivityID uuid.UUID `gorm:"column:activity_id;type:uuid;not null;uniqueIndex:ux_activity_members,priority:1"`
	MemberID   uuid.UUID `gorm:"column:member_id;type:uuid;not null;uniqueIndex:ux_activity_members,priority:2"`
	Shares     int       `gorm:"column:shares;not null;default:1"`
	Active     bool      `gorm:"column:active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (m *ActivityMember) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
