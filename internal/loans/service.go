package loans

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/internal/activities"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/internal/transfers"
	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
	"github.com/angelmondragon/chama-backend/pkg/outbox"
	"github.com/angelmondragon/chama-backend/pkg/outbox/payloads"
)

var hundred = decimal.NewFromInt(100)

// Interest is round(principal * rate / 100) to whole currency units, half away from zero.
func Interest(principal, rate decimal.Decimal) decimal.Decimal {
	return principal.Mul(rate).Div(hundred).Round(0)
}

type RequestInput struct {
	ActivityID uuid.UUID
	MemberID   uuid.UUID
	Principal  decimal.Decimal
}

type RepayInput struct {
	LoanID   uuid.UUID
	MemberID uuid.UUID
	Amount   decimal.Decimal
}

// Repayment reports how a payment was split.
type Repayment struct {
	Loan          *models.SoftLoan
	InterestPaid  decimal.Decimal
	PrincipalPaid decimal.Decimal
	Transfer      *models.Transfer
}

type ServiceParams struct {
	Store      *ledger.Store
	Repo       *Repository
	Activities *activities.Repository
	Transfers  transfers.Repository
	Events     outbox.Emitter
	Location   *time.Location
	Logger     *logger.Logger
}

// Service runs the soft-loan lifecycle of table-banking activities.
type Service struct {
	store      *ledger.Store
	repo       *Repository
	activities *activities.Repository
	transfers  transfers.Repository
	events     outbox.Emitter
	loc        *time.Location
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	if params.Repo == nil || params.Activities == nil || params.Transfers == nil {
		return nil, fmt.Errorf("loans, activities and transfers repositories required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	loc := params.Location
	if loc == nil {
		loc = clock.EAT()
	}
	return &Service{
		store:      params.Store,
		repo:       params.Repo,
		activities: params.Activities,
		transfers:  params.Transfers,
		events:     params.Events,
		loc:        loc,
		logg:       params.Logger,
	}, nil
}

// Request opens a loan. On a mandatory contribution day of an activity that
// requires approval the loan waits for a manager; otherwise the principal is
// disbursed at once.
func (s *Service) Request(ctx context.Context, input RequestInput) (*models.SoftLoan, error) {
	if err := validateAmount(input.Principal, "principal"); err != nil {
		return nil, err
	}
	var loan *models.SoftLoan
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		activity, err := s.lockActivity(ctx, uow.Tx(), input.ActivityID)
		if err != nil {
			return err
		}
		enrolment, err := s.activities.WithTx(uow.Tx()).FindActivityMember(ctx, activity.ID, input.MemberID)
		if err != nil {
			return notFound(err, "member is not enrolled in this activity")
		}
		if !enrolment.Active {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "enrolment is inactive")
		}
		repo := s.repo.WithTx(uow.Tx())
		open, err := repo.ListOpenByMember(ctx, activity.ID, input.MemberID)
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "member already has an open loan").
				WithDetails(map[string]any{"loan_id": open[0].ID.String()})
		}

		interest := Interest(input.Principal, activity.LoanInterestRate)
		loan = &models.SoftLoan{
			ActivityID:         activity.ID,
			MemberID:           input.MemberID,
			CycleNumber:        activity.CycleNumber,
			PrincipalRequested: input.Principal,
			StandingBalance:    input.Principal,
			ExpectedInterest:   interest,
			TotalRequired:      input.Principal.Add(interest),
			TotalRepaid:        decimal.Zero,
			InterestRate:       activity.LoanInterestRate,
			State:              enums.LoanStateAwaitingApproval,
			CreatedAt:          uow.Now().UTC(),
		}
		if err := repo.Create(ctx, loan); err != nil {
			return err
		}
		schedule := activities.ScheduleFor(activity, s.loc)
		if activity.RequiresApproval && schedule.IsMandatoryDay(uow.Now()) {
			return nil
		}
		return s.approve(ctx, uow, activity, loan)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"loan_id":     loan.ID.String(),
		"activity_id": loan.ActivityID.String(),
		"state":       string(loan.State),
	}), "loan requested")
	return loan, nil
}

// Approve disburses a loan that was waiting for a manager.
func (s *Service) Approve(ctx context.Context, loanID uuid.UUID) (*models.SoftLoan, error) {
	var loan *models.SoftLoan
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		activity, locked, err := s.lockLoan(ctx, uow.Tx(), loanID)
		if err != nil {
			return err
		}
		if locked.State != enums.LoanStateAwaitingApproval {
			return invalidState(locked, "only loans awaiting approval can be approved")
		}
		loan = locked
		return s.approve(ctx, uow, activity, loan)
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Reject closes a loan that was waiting for a manager.
func (s *Service) Reject(ctx context.Context, loanID uuid.UUID) (*models.SoftLoan, error) {
	var loan *models.SoftLoan
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		_, locked, err := s.lockLoan(ctx, uow.Tx(), loanID)
		if err != nil {
			return err
		}
		if locked.State != enums.LoanStateAwaitingApproval {
			return invalidState(locked, "only loans awaiting approval can be rejected")
		}
		locked.State = enums.LoanStateRejected
		loan = locked
		return s.repo.WithTx(uow.Tx()).Save(ctx, loan, uow.Now())
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Repay applies a payment interest first. Collected interest is added to the
// activity's dividend pool.
func (s *Service) Repay(ctx context.Context, input RepayInput) (*Repayment, error) {
	if err := validateAmount(input.Amount, "amount"); err != nil {
		return nil, err
	}
	var out *Repayment
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		activity, loan, err := s.lockLoan(ctx, uow.Tx(), input.LoanID)
		if err != nil {
			return err
		}
		if input.MemberID != uuid.Nil && loan.MemberID != input.MemberID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "loan belongs to another member")
		}
		if !loan.State.IsActive() {
			return invalidState(loan, "loan is not repayable")
		}
		if input.Amount.GreaterThan(loan.TotalRequired) {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment exceeds the outstanding balance").
				WithDetails(map[string]any{"outstanding": loan.TotalRequired.StringFixed(2)})
		}

		interestPaid, principalPaid := applyPayment(loan, input.Amount)
		now := uow.Now()
		if loan.StandingBalance.IsZero() && loan.ExpectedInterest.IsZero() {
			loan.State = enums.LoanStateCleared
			cleared := now.UTC()
			loan.ClearedAt = &cleared
		}

		memberID := loan.MemberID
		transfer, err := transfers.RecordLocal(ctx, uow, s.transfers, s.loc, transfers.LocalInput{
			Kind:       enums.TransferKindLoanRepayment,
			Amount:     input.Amount,
			From:       ledger.Wallet(memberID),
			To:         ledger.ActivityAccount(activity.ID),
			MemberID:   &memberID,
			GroupID:    &activity.GroupID,
			ActivityID: &activity.ID,
			Note:       fmt.Sprintf("loan %s repayment", loan.ID),
		})
		if err != nil {
			return err
		}
		if err := s.repo.WithTx(uow.Tx()).Save(ctx, loan, now); err != nil {
			return err
		}
		if err := s.postTotals(ctx, uow.Tx(), loan, now, func(t *models.LoanManagement) {
			t.UnpaidInterest = t.UnpaidInterest.Sub(interestPaid)
			t.RepaidInterest = t.RepaidInterest.Add(interestPaid)
			t.UnpaidLoans = t.UnpaidLoans.Sub(principalPaid)
			t.RepaidLoans = t.RepaidLoans.Add(principalPaid)
		}); err != nil {
			return err
		}
		if interestPaid.IsPositive() {
			if _, err := s.activities.WithTx(uow.Tx()).CreditDividendPool(ctx, activity.ID, activity.CycleNumber, interestPaid, now); err != nil {
				return err
			}
		}
		amount := input.Amount
		if err := s.emit(ctx, uow.Tx(), enums.EventLoanRepaid, loan, &amount, now); err != nil {
			return err
		}
		out = &Repayment{Loan: loan, InterestPaid: interestPaid, PrincipalPaid: principalPaid, Transfer: transfer}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReageOverdue rolls every active loan of the activity whose repayment date has
// passed: unpaid interest is capitalised, fresh interest is charged on the new
// balance and the due date moves one interval. Loan totals receive only the
// change against what was already posted.
func (s *Service) ReageOverdue(ctx context.Context, activityID uuid.UUID) (int, error) {
	count := 0
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		activity, err := s.lockActivity(ctx, uow.Tx(), activityID)
		if err != nil {
			return err
		}
		now := uow.Now()
		today := clock.StartOfDay(now, s.loc)
		repo := s.repo.WithTx(uow.Tx())
		due, err := repo.ListDue(ctx, activity.ID, today)
		if err != nil {
			return err
		}
		schedule := activities.ScheduleFor(activity, s.loc)
		for i := range due {
			loan := &due[i]
			oldStanding, oldInterest := loan.StandingBalance, loan.ExpectedInterest
			reage(loan, schedule)
			if err := repo.Save(ctx, loan, now); err != nil {
				return err
			}
			if err := s.postTotals(ctx, uow.Tx(), loan, now, func(t *models.LoanManagement) {
				t.UnpaidLoans = t.UnpaidLoans.Add(loan.StandingBalance.Sub(oldStanding))
				t.UnpaidInterest = t.UnpaidInterest.Add(loan.ExpectedInterest.Sub(oldInterest))
			}); err != nil {
				return err
			}
			if err := s.emit(ctx, uow.Tx(), enums.EventLoanReaged, loan, nil, now); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"activity_id": activityID.String(),
			"reaged":      count,
		}), "overdue loans re-aged")
	}
	return count, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.SoftLoan, error) {
	loan, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, notFound(err, "loan not found")
	}
	return loan, nil
}

func (s *Service) List(ctx context.Context, activityID uuid.UUID) ([]models.SoftLoan, error) {
	return s.repo.ListByActivity(ctx, activityID)
}

// Totals returns the loan aggregates of the activity's current cycle.
func (s *Service) Totals(ctx context.Context, activityID uuid.UUID) (*models.LoanManagement, error) {
	activity, err := s.activities.FindActivity(ctx, activityID)
	if err != nil {
		return nil, notFound(err, "activity not found")
	}
	totals, err := s.repo.FindTotals(ctx, activity.ID, activity.CycleNumber)
	if err != nil {
		return nil, notFound(err, "loan totals not found")
	}
	return totals, nil
}

func (s *Service) approve(ctx context.Context, uow *ledger.UnitOfWork, activity *models.Activity, loan *models.SoftLoan) error {
	memberID := loan.MemberID
	if _, err := transfers.RecordLocal(ctx, uow, s.transfers, s.loc, transfers.LocalInput{
		Kind:       enums.TransferKindLoanDisbursement,
		Amount:     loan.PrincipalRequested,
		From:       ledger.ActivityAccount(activity.ID),
		To:         ledger.Wallet(memberID),
		MemberID:   &memberID,
		GroupID:    &activity.GroupID,
		ActivityID: &activity.ID,
		Note:       fmt.Sprintf("loan %s disbursement", loan.ID),
	}); err != nil {
		return err
	}

	now := uow.Now()
	approvedAt := now.UTC()
	repayBy := activities.ScheduleFor(activity, s.loc).NextDate(now, 1).UTC()
	loan.State = enums.LoanStateApproved
	loan.ApprovedAt = &approvedAt
	loan.ExpectedRepaymentDate = &repayBy
	if err := s.repo.WithTx(uow.Tx()).Save(ctx, loan, now); err != nil {
		return err
	}
	if err := s.postTotals(ctx, uow.Tx(), loan, now, func(t *models.LoanManagement) {
		t.TotalLoansTaken = t.TotalLoansTaken.Add(loan.PrincipalRequested)
		t.UnpaidLoans = t.UnpaidLoans.Add(loan.StandingBalance)
		t.UnpaidInterest = t.UnpaidInterest.Add(loan.ExpectedInterest)
	}); err != nil {
		return err
	}
	return s.emit(ctx, uow.Tx(), enums.EventLoanApproved, loan, &loan.PrincipalRequested, now)
}

func (s *Service) postTotals(ctx context.Context, tx *gorm.DB, loan *models.SoftLoan, at time.Time, apply func(*models.LoanManagement)) error {
	if err := s.activities.WithTx(tx).OpenCycle(ctx, loan.ActivityID, loan.CycleNumber); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	totals, err := repo.LockTotals(ctx, loan.ActivityID, loan.CycleNumber)
	if err != nil {
		return err
	}
	apply(totals)
	return repo.SaveTotals(ctx, totals, at)
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, loan *models.SoftLoan, amount *decimal.Decimal, at time.Time) error {
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateSoftLoan,
		AggregateID:   loan.ID,
		Data: payloads.LoanEvent{
			LoanID:                loan.ID,
			ActivityID:            loan.ActivityID,
			MemberID:              loan.MemberID,
			CycleNumber:           loan.CycleNumber,
			State:                 loan.State,
			StandingBalance:       loan.StandingBalance,
			ExpectedInterest:      loan.ExpectedInterest,
			TotalRequired:         loan.TotalRequired,
			TotalRepaid:           loan.TotalRepaid,
			MissedPayments:        loan.MissedPayments,
			Amount:                amount,
			ExpectedRepaymentDate: loan.ExpectedRepaymentDate,
		},
		OccurredAt: at,
	})
}

// lockActivity takes the activity row lock first; every loan unit locks in
// activity, loan, totals, pool, accounts order.
func (s *Service) lockActivity(ctx context.Context, tx *gorm.DB, activityID uuid.UUID) (*models.Activity, error) {
	activity, err := s.activities.WithTx(tx).LockActivity(ctx, activityID)
	if err != nil {
		return nil, notFound(err, "activity not found")
	}
	if activity.Type != enums.ActivityTypeTableBanking {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "loans are only offered by table-banking activities")
	}
	return activity, nil
}

func (s *Service) lockLoan(ctx context.Context, tx *gorm.DB, loanID uuid.UUID) (*models.Activity, *models.SoftLoan, error) {
	repo := s.repo.WithTx(tx)
	peek, err := repo.Find(ctx, loanID)
	if err != nil {
		return nil, nil, notFound(err, "loan not found")
	}
	activity, err := s.lockActivity(ctx, tx, peek.ActivityID)
	if err != nil {
		return nil, nil, err
	}
	loan, err := repo.Lock(ctx, loanID)
	if err != nil {
		return nil, nil, notFound(err, "loan not found")
	}
	return activity, loan, nil
}

// applyPayment reduces interest first, then the standing balance.
func applyPayment(loan *models.SoftLoan, amount decimal.Decimal) (interest, principal decimal.Decimal) {
	interest = decimal.Min(loan.ExpectedInterest, amount)
	principal = amount.Sub(interest)
	loan.ExpectedInterest = loan.ExpectedInterest.Sub(interest)
	loan.StandingBalance = loan.StandingBalance.Sub(principal)
	loan.TotalRepaid = loan.TotalRepaid.Add(amount)
	loan.TotalRequired = loan.TotalRequired.Sub(amount)
	return interest, principal
}

// reage capitalises the outstanding interest and charges interest again.
func reage(loan *models.SoftLoan, schedule activities.Schedule) {
	loan.StandingBalance = loan.TotalRequired
	loan.ExpectedInterest = Interest(loan.StandingBalance, loan.InterestRate)
	loan.TotalRequired = loan.StandingBalance.Add(loan.ExpectedInterest)
	loan.MissedPayments++
	loan.State = enums.LoanStateOverdue
	if loan.ExpectedRepaymentDate != nil {
		next := schedule.NextDate(*loan.ExpectedRepaymentDate, 1).UTC()
		loan.ExpectedRepaymentDate = &next
	}
}

func invalidState(loan *models.SoftLoan, msg string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).
		WithDetails(map[string]any{"loan_id": loan.ID.String(), "state": string(loan.State)})
}

func validateAmount(amount decimal.Decimal, field string) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" must be positive with at most two decimals")
	}
	return nil
}

func notFound(err error, msg string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return err
}
