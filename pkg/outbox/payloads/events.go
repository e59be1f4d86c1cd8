package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/chama-backend/pkg/enums"
)

// TransferSettledEvent is emitted when a transfer completes or fails.
type TransferSettledEvent struct {
	TransferID      uuid.UUID            `json:"transfer_id"`
	Kind            enums.TransferKind   `json:"kind"`
	Status          enums.TransferStatus `json:"status"`
	Amount          decimal.Decimal      `json:"amount"`
	MemberID        *uuid.UUID           `json:"member_id,omitempty"`
	GroupID         *uuid.UUID           `json:"group_id,omitempty"`
	ActivityID      *uuid.UUID           `json:"activity_id,omitempty"`
	IdempotencyCode string               `json:"idempotency_code"`
	ReceiptCode     string               `json:"receipt_code,omitempty"`
	FailureReason   string               `json:"failure_reason,omitempty"`
	SettledAt       time.Time            `json:"settled_at"`
}

// RotationDisbursedEvent reports a merry-go-round payout.
type RotationDisbursedEvent struct {
	SlotID          uuid.UUID       `json:"slot_id"`
	ActivityID      uuid.UUID       `json:"activity_id"`
	CycleNumber     int             `json:"cycle_number"`
	OrderInRotation int             `json:"order_in_rotation"`
	RecipientID     uuid.UUID       `json:"recipient_id"`
	Amount          decimal.Decimal `json:"amount"`
	Fulfilled       bool            `json:"fulfilled"`
	TransferID      uuid.UUID       `json:"transfer_id"`
}

// LoanEvent covers approval, repayment and re-aging of a soft loan.
type LoanEvent struct {
	LoanID                uuid.UUID        `json:"loan_id"`
	ActivityID            uuid.UUID        `json:"activity_id"`
	MemberID              uuid.UUID        `json:"member_id"`
	CycleNumber           int              `json:"cycle_number"`
	State                 enums.LoanState  `json:"state"`
	StandingBalance       decimal.Decimal  `json:"standing_balance"`
	ExpectedInterest      decimal.Decimal  `json:"expected_interest"`
	TotalRequired         decimal.Decimal  `json:"total_required"`
	TotalRepaid           decimal.Decimal  `json:"total_repaid"`
	MissedPayments        int              `json:"missed_payments"`
	Amount                *decimal.Decimal `json:"amount,omitempty"`
	ExpectedRepaymentDate *time.Time       `json:"expected_repayment_date,omitempty"`
}

// DividendsDistributedEvent closes a dividend round.
type DividendsDistributedEvent struct {
	PoolID           uuid.UUID          `json:"pool_id"`
	ActivityID       uuid.UUID          `json:"activity_id"`
	CycleNumber      int                `json:"cycle_number"`
	Mode             enums.DividendMode `json:"mode"`
	DividendPerShare decimal.Decimal    `json:"dividend_per_share"`
	TotalPaid        decimal.Decimal    `json:"total_paid"`
	Recipients       int                `json:"recipients"`
	NextCycleNumber  int                `json:"next_cycle_number"`
}
