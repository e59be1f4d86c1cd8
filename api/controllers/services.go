package controllers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/chama-backend/internal/activities"
	"github.com/angelmondragon/chama-backend/internal/dividends"
	"github.com/angelmondragon/chama-backend/internal/fines"
	"github.com/angelmondragon/chama-backend/internal/gateway"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/internal/loans"
	"github.com/angelmondragon/chama-backend/internal/reconciler"
	"github.com/angelmondragon/chama-backend/internal/rotation"
	"github.com/angelmondragon/chama-backend/internal/transfers"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
)

type MemberService interface {
	RegisterMember(ctx context.Context, input activities.RegisterMemberInput) (*models.Member, error)
}

type GroupService interface {
	CreateGroup(ctx context.Context, input activities.CreateGroupInput) (*models.Group, error)
	JoinGroup(ctx context.Context, groupID, memberID uuid.UUID) (*models.GroupMember, error)
}

type ActivityService interface {
	CreateActivity(ctx context.Context, input activities.CreateActivityInput) (*models.Activity, error)
	Enroll(ctx context.Context, input activities.EnrollInput) (*models.ActivityMember, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Activity, error)
	RequireManager(ctx context.Context, activityID, memberID uuid.UUID) error
	Location() *time.Location
}

type WalletService interface {
	RequestDeposit(ctx context.Context, input transfers.DepositInput) (*models.Transfer, error)
	RequestWithdrawal(ctx context.Context, input transfers.WithdrawalInput) (*models.Transfer, error)
	RequestRegistrationFee(ctx context.Context, input transfers.RegistrationFeeInput) (*models.Transfer, error)
	Transfer(ctx context.Context, input transfers.TransferInput) (*models.Transfer, error)
	Available(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Transfer, error)
	History(ctx context.Context, memberID uuid.UUID, kind enums.TransferKind, limit int, cursor string) (*transfers.HistoryPage, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, ref ledger.AccountRef) (decimal.Decimal, error)
}

type ContributionService interface {
	Contribute(ctx context.Context, activityID, memberID uuid.UUID, amount decimal.Decimal) (*models.Contribution, error)
}

type RotationService interface {
	GenerateOrder(ctx context.Context, activityID uuid.UUID) ([]models.RotationSlot, error)
	Slots(ctx context.Context, activityID uuid.UUID) ([]models.RotationSlot, error)
	Swap(ctx context.Context, activityID uuid.UUID, orderA, orderB int) ([]models.RotationSlot, error)
	Disburse(ctx context.Context, activityID uuid.UUID) (*rotation.Payout, error)
}

type LoanService interface {
	Request(ctx context.Context, input loans.RequestInput) (*models.SoftLoan, error)
	Approve(ctx context.Context, loanID uuid.UUID) (*models.SoftLoan, error)
	Reject(ctx context.Context, loanID uuid.UUID) (*models.SoftLoan, error)
	Repay(ctx context.Context, input loans.RepayInput) (*loans.Repayment, error)
	Get(ctx context.Context, id uuid.UUID) (*models.SoftLoan, error)
	List(ctx context.Context, activityID uuid.UUID) ([]models.SoftLoan, error)
	Totals(ctx context.Context, activityID uuid.UUID) (*models.LoanManagement, error)
}

type FineService interface {
	Issue(ctx context.Context, input fines.IssueInput) (*models.Fine, error)
	Pay(ctx context.Context, fineID, memberID uuid.UUID) (*models.Fine, error)
	List(ctx context.Context, activityID uuid.UUID, status enums.FineStatus) ([]models.Fine, error)
}

type DividendService interface {
	Distribute(ctx context.Context, activityID uuid.UUID) (*dividends.Round, error)
	Disbursements(ctx context.Context, activityID uuid.UUID, cycle int) ([]models.Disbursement, error)
}

// CallbackHandler settles one parsed gateway result.
type CallbackHandler interface {
	Handle(ctx context.Context, result gateway.Result) (reconciler.Outcome, error)
}
