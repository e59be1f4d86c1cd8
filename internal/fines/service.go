package fines

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/chama-backend/internal/activities"
	"github.com/angelmondragon/chama-backend/internal/contributions"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/internal/transfers"
	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

const missedContributionReason = "missed contribution"

type IssueInput struct {
	ActivityID uuid.UUID
	MemberID   uuid.UUID
	Amount     decimal.Decimal
	Reason     string
}

type ServiceParams struct {
	Store         *ledger.Store
	Repo          *Repository
	Activities    *activities.Repository
	Contributions *contributions.Repository
	Transfers     transfers.Repository
	Location      *time.Location
	Logger        *logger.Logger
}

// Service issues fines and books their payment into the activity.
type Service struct {
	store         *ledger.Store
	repo          *Repository
	activities    *activities.Repository
	contributions *contributions.Repository
	transfers     transfers.Repository
	loc           *time.Location
	logg          *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	if params.Repo == nil || params.Activities == nil || params.Contributions == nil || params.Transfers == nil {
		return nil, fmt.Errorf("fines, activities, contributions and transfers repositories required")
	}
	loc := params.Location
	if loc == nil {
		loc = clock.EAT()
	}
	return &Service{
		store:         params.Store,
		repo:          params.Repo,
		activities:    params.Activities,
		contributions: params.Contributions,
		transfers:     params.Transfers,
		loc:           loc,
		logg:          params.Logger,
	}, nil
}

// Issue records an unpaid fine against an enrolled member.
func (s *Service) Issue(ctx context.Context, input IssueInput) (*models.Fine, error) {
	if !input.Amount.IsPositive() || !input.Amount.Equal(input.Amount.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fine amount must be positive with at most two decimals")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	var fine *models.Fine
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		repo := s.activities.WithTx(uow.Tx())
		activity, err := repo.FindActivity(ctx, input.ActivityID)
		if err != nil {
			return notFound(err, "activity not found")
		}
		if _, err := repo.FindActivityMember(ctx, activity.ID, input.MemberID); err != nil {
			return notFound(err, "member is not enrolled in this activity")
		}
		fine = &models.Fine{
			ActivityID:  activity.ID,
			MemberID:    input.MemberID,
			CycleNumber: activity.CycleNumber,
			Amount:      input.Amount,
			Reason:      reason,
			Status:      enums.FineStatusUnpaid,
			CreatedAt:   uow.Now().UTC(),
		}
		return s.repo.WithTx(uow.Tx()).Create(ctx, fine)
	})
	if err != nil {
		return nil, err
	}
	return fine, nil
}

// Pay moves the fine from the member's wallet into the activity account and adds
// it to the activity's unpaid dividends.
func (s *Service) Pay(ctx context.Context, fineID, memberID uuid.UUID) (*models.Fine, error) {
	var fine *models.Fine
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		peek, err := s.repo.WithTx(uow.Tx()).Find(ctx, fineID)
		if err != nil {
			return notFound(err, "fine not found")
		}
		activity, err := s.activities.WithTx(uow.Tx()).LockActivity(ctx, peek.ActivityID)
		if err != nil {
			return notFound(err, "activity not found")
		}
		repo := s.repo.WithTx(uow.Tx())
		fine, err = repo.Lock(ctx, fineID)
		if err != nil {
			return notFound(err, "fine not found")
		}
		if memberID != uuid.Nil && fine.MemberID != memberID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "fine belongs to another member")
		}
		if fine.Status != enums.FineStatusUnpaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "fine already paid").
				WithDetails(map[string]any{"fine_id": fine.ID.String()})
		}

		payer := fine.MemberID
		transfer, err := transfers.RecordLocal(ctx, uow, s.transfers, s.loc, transfers.LocalInput{
			Kind:       enums.TransferKindFinePayment,
			Amount:     fine.Amount,
			From:       ledger.Wallet(payer),
			To:         ledger.ActivityAccount(activity.ID),
			MemberID:   &payer,
			GroupID:    &activity.GroupID,
			ActivityID: &activity.ID,
			Note:       "fine: " + fine.Reason,
		})
		if err != nil {
			return err
		}
		now := uow.Now()
		if err := repo.MarkPaid(ctx, fine.ID, transfer.ID, now); err != nil {
			return err
		}
		paidAt := now.UTC()
		fine.Status = enums.FineStatusPaid
		fine.TransferID = &transfer.ID
		fine.PaidAt = &paidAt
		_, err = s.activities.WithTx(uow.Tx()).CreditDividendPool(ctx, activity.ID, activity.CycleNumber, fine.Amount, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fine, nil
}

// IssueMissedContributionFines fines every member who paid less than their
// shares required on the last contribution date before today. Each member is
// fined at most once per date.
func (s *Service) IssueMissedContributionFines(ctx context.Context, activityID uuid.UUID) (int, error) {
	issued := 0
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		activityRepo := s.activities.WithTx(uow.Tx())
		activity, err := activityRepo.LockActivity(ctx, activityID)
		if err != nil {
			return notFound(err, "activity not found")
		}
		if !activity.Active || !activity.LateFine.IsPositive() {
			return nil
		}
		yesterday := clock.StartOfDay(uow.Now(), s.loc).AddDate(0, 0, -1)
		date, ok := activities.ScheduleFor(activity, s.loc).Current(yesterday)
		if !ok {
			return nil
		}
		_, closeOfDay := clock.DayBounds(date, s.loc)

		members, err := activityRepo.ListActiveMembers(ctx, activity.ID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(uow.Tx())
		contribRepo := s.contributions.WithTx(uow.Tx())
		for _, m := range members {
			if !m.CreatedAt.Before(closeOfDay) {
				continue
			}
			already, err := repo.IssuedFor(ctx, activity.ID, m.MemberID, date)
			if err != nil {
				return err
			}
			if already {
				continue
			}
			paid, err := contribRepo.PaidOn(ctx, activity.ID, m.MemberID, date)
			if err != nil {
				return err
			}
			owed := activity.ContributionAmount.Mul(decimal.NewFromInt(int64(m.Shares)))
			if !paid.LessThan(owed) {
				continue
			}
			issuedFor := date
			if err := repo.Create(ctx, &models.Fine{
				ActivityID:  activity.ID,
				MemberID:    m.MemberID,
				CycleNumber: activity.CycleNumber,
				Amount:      activity.LateFine,
				Reason:      fmt.Sprintf("%s on %s", missedContributionReason, date.Format("2006-01-02")),
				IssuedFor:   &issuedFor,
				Status:      enums.FineStatusUnpaid,
				CreatedAt:   uow.Now().UTC(),
			}); err != nil {
				return err
			}
			issued++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if issued > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"activity_id": activityID.String(),
			"fines":       issued,
		}), "missed contribution fines issued")
	}
	return issued, nil
}

func (s *Service) List(ctx context.Context, activityID uuid.UUID, status enums.FineStatus) ([]models.Fine, error) {
	return s.repo.ListByActivity(ctx, activityID, status)
}

func notFound(err error, msg string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return err
}
