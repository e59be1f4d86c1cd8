package contributions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/chama-backend/internal/activities"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/internal/transfers"
	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

type ServiceParams struct {
	Store      *ledger.Store
	Repo       *Repository
	Activities *activities.Repository
	Transfers  transfers.Repository
	Location   *time.Location
	Logger     *logger.Logger
}

// Service books member contributions into activity accounts.
type Service struct {
	store      *ledger.Store
	repo       *Repository
	activities *activities.Repository
	transfers  transfers.Repository
	loc        *time.Location
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	if params.Repo == nil || params.Activities == nil || params.Transfers == nil {
		return nil, fmt.Errorf("contributions, activities and transfers repositories required")
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
		loc:        loc,
		logg:       params.Logger,
	}, nil
}

// Contribute moves amount from the member's wallet into the activity account and
// records it against the current contribution date. A merry-go-round contribution
// is attributed to the recipient of that date's rotation slot.
func (s *Service) Contribute(ctx context.Context, activityID, memberID uuid.UUID, amount decimal.Decimal) (*models.Contribution, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive with at most two decimals")
	}

	var out *models.Contribution
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		activityRepo := s.activities.WithTx(uow.Tx())
		activity, err := activityRepo.LockActivity(ctx, activityID)
		if err != nil {
			return notFound(err, "activity not found")
		}
		if !activity.Active {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "activity is closed")
		}
		enrolment, err := activityRepo.FindActivityMember(ctx, activityID, memberID)
		if err != nil {
			return notFound(err, "member is not enrolled in this activity")
		}
		if !enrolment.Active {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "enrolment is inactive")
		}

		now := uow.Now()
		date, ok := activities.ScheduleFor(activity, s.loc).Current(now)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "activity has not started").
				WithDetails(map[string]any{"first_contribution_date": activity.FirstContributionDate})
		}

		repo := s.repo.WithTx(uow.Tx())
		recipient, err := repo.SlotRecipient(ctx, activity.ID, activity.CycleNumber, date)
		if err != nil {
			return err
		}
		transfer, err := transfers.RecordLocal(ctx, uow, s.transfers, s.loc, transfers.LocalInput{
			Kind:       enums.TransferKindContribution,
			Amount:     amount,
			From:       ledger.Wallet(memberID),
			To:         ledger.ActivityAccount(activity.ID),
			MemberID:   &memberID,
			GroupID:    &activity.GroupID,
			ActivityID: &activity.ID,
			Note:       fmt.Sprintf("contribution for %s", date.Format("2006-01-02")),
		})
		if err != nil {
			return err
		}

		out = &models.Contribution{
			ActivityID:       activity.ID,
			MemberID:         memberID,
			CycleNumber:      activity.CycleNumber,
			ContributionDate: date,
			RecipientID:      recipient,
			Amount:           amount,
			TransferID:       transfer.ID,
			CreatedAt:        now.UTC(),
		}
		return repo.Create(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"activity_id": activityID.String(),
		"member_id":   memberID.String(),
		"amount":      amount.StringFixed(2),
	}), "contribution recorded")
	return out, nil
}

func notFound(err error, msg string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return err
}
