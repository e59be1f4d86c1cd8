package dividends

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/internal/activities"
	"github.com/angelmondragon/chama-backend/internal/contributions"
	"github.com/angelmondragon/chama-backend/internal/fines"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/internal/loans"
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

type ServiceParams struct {
	Store         *ledger.Store
	Repo          *Repository
	Activities    *activities.Repository
	Contributions *contributions.Repository
	Loans         *loans.Repository
	Fines         *fines.Repository
	Transfers     transfers.Repository
	Events        outbox.Emitter
	Location      *time.Location
	Logger        *logger.Logger
}

// Service pays out an activity's dividend pool and rolls the activity into
// its next cycle.
type Service struct {
	store         *ledger.Store
	repo          *Repository
	activities    *activities.Repository
	contributions *contributions.Repository
	loans         *loans.Repository
	fines         *fines.Repository
	transfers     transfers.Repository
	events        outbox.Emitter
	loc           *time.Location
	logg          *logger.Logger
}

// Round is the outcome of one distribution.
type Round struct {
	PoolID           uuid.UUID
	CycleNumber      int
	DividendPerShare decimal.Decimal
	TotalDividends   decimal.Decimal
	TotalPrincipal   decimal.Decimal
	Disbursements    []models.Disbursement
	Excluded         []uuid.UUID
	NextCycle        int
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Store == nil:
		return nil, fmt.Errorf("ledger store required")
	case params.Repo == nil || params.Activities == nil || params.Contributions == nil:
		return nil, fmt.Errorf("dividends, activities and contributions repositories required")
	case params.Loans == nil || params.Fines == nil || params.Transfers == nil:
		return nil, fmt.Errorf("loans, fines and transfers repositories required")
	case params.Events == nil:
		return nil, fmt.Errorf("event emitter required")
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
		loans:         params.Loans,
		fines:         params.Fines,
		transfers:     params.Transfers,
		events:        params.Events,
		loc:           loc,
		logg:          params.Logger,
	}, nil
}

type payee struct {
	member    models.ActivityMember
	dividend  decimal.Decimal
	principal decimal.Decimal
}

// Distribute splits the current cycle's unpaid dividends across eligible
// members by shares. Members with an active loan or an unpaid fine are skipped
// but still count towards the share total.
func (s *Service) Distribute(ctx context.Context, activityID uuid.UUID) (*Round, error) {
	var round *Round
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		activityRepo := s.activities.WithTx(uow.Tx())
		activity, err := activityRepo.LockActivity(ctx, activityID)
		if err != nil {
			return notFound(err, "activity not found")
		}
		if !activity.Active {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "activity is closed")
		}
		if activity.Type == enums.ActivityTypeMerryGoRound {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "merry-go-round activities do not pay dividends")
		}
		now := uow.Now()
		today := clock.StartOfDay(now, s.loc)
		if activity.NextDividendDate != nil && today.Before(clock.StartOfDay(*activity.NextDividendDate, s.loc)) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dividends are not due yet").
				WithDetails(map[string]any{"next_dividend_date": activity.NextDividendDate.In(s.loc).Format("2006-01-02")})
		}

		pool, err := activityRepo.LockDividendPool(ctx, activity.ID, activity.CycleNumber)
		if err != nil {
			return err
		}
		members, err := activityRepo.ListActiveMembers(ctx, activity.ID)
		if err != nil {
			return err
		}
		totalShares := 0
		for _, m := range members {
			totalShares += m.Shares
		}
		if totalShares == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "activity has no active shares")
		}
		perShare := pool.UnpaidDividends.Div(decimal.NewFromInt(int64(totalShares))).Truncate(2)

		payees, excluded, err := s.payees(ctx, uow.Tx(), activity, members, perShare)
		if err != nil {
			return err
		}

		activityRef := ledger.ActivityAccount(activity.ID)
		refs := []ledger.AccountRef{activityRef}
		for _, p := range payees {
			refs = append(refs, ledger.Wallet(p.member.MemberID))
		}
		if err := uow.Lock(ctx, refs...); err != nil {
			return err
		}

		round = &Round{
			PoolID:           pool.ID,
			CycleNumber:      activity.CycleNumber,
			DividendPerShare: perShare,
			TotalDividends:   decimal.Zero,
			TotalPrincipal:   decimal.Zero,
			Excluded:         excluded,
		}
		for _, p := range payees {
			memberID := p.member.MemberID
			transfer, err := transfers.RecordLocal(ctx, uow, s.transfers, s.loc, transfers.LocalInput{
				Kind:       enums.TransferKindDividendPayout,
				Amount:     p.dividend.Add(p.principal),
				From:       activityRef,
				To:         ledger.Wallet(memberID),
				MemberID:   &memberID,
				GroupID:    &activity.GroupID,
				ActivityID: &activity.ID,
				Note:       fmt.Sprintf("dividends cycle %d", activity.CycleNumber),
			})
			if err != nil {
				return err
			}
			round.Disbursements = append(round.Disbursements, models.Disbursement{
				ActivityID:      activity.ID,
				CycleNumber:     activity.CycleNumber,
				MemberID:        memberID,
				Shares:          p.member.Shares,
				DividendAmount:  p.dividend,
				PrincipalAmount: p.principal,
				TransferID:      transfer.ID,
				CreatedAt:       now.UTC(),
			})
			round.TotalDividends = round.TotalDividends.Add(p.dividend)
			round.TotalPrincipal = round.TotalPrincipal.Add(p.principal)
		}
		if err := s.repo.WithTx(uow.Tx()).CreateDisbursements(ctx, round.Disbursements); err != nil {
			return err
		}

		distributedAt := now.UTC()
		pool.PaidDividends = pool.PaidDividends.Add(round.TotalDividends)
		pool.UnpaidDividends = pool.UnpaidDividends.Sub(round.TotalDividends)
		pool.DistributedAt = &distributedAt
		if err := activityRepo.SaveDividendPool(ctx, pool, now); err != nil {
			return err
		}

		round.NextCycle, err = s.roll(ctx, activityRepo, activity, today)
		if err != nil {
			return err
		}
		return s.events.Emit(ctx, uow.Tx(), outbox.DomainEvent{
			EventType:     enums.EventDividendsDistributed,
			AggregateType: enums.AggregateDividendPool,
			AggregateID:   pool.ID,
			Data: payloads.DividendsDistributedEvent{
				PoolID:           pool.ID,
				ActivityID:       activity.ID,
				CycleNumber:      round.CycleNumber,
				Mode:             activity.DividendMode,
				DividendPerShare: perShare,
				TotalPaid:        round.TotalDividends.Add(round.TotalPrincipal),
				Recipients:       len(round.Disbursements),
				NextCycleNumber:  round.NextCycle,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"activity_id":        activityID.String(),
		"cycle_number":       round.CycleNumber,
		"dividend_per_share": round.DividendPerShare.StringFixed(2),
		"recipients":         len(round.Disbursements),
		"excluded":           len(round.Excluded),
	}), "dividends distributed")
	return round, nil
}

// Due reports whether the activity has reached its dividend date.
func (s *Service) Due(activity *models.Activity, now time.Time) bool {
	if activity.NextDividendDate == nil || activity.Type == enums.ActivityTypeMerryGoRound {
		return false
	}
	return !clock.StartOfDay(now, s.loc).Before(clock.StartOfDay(*activity.NextDividendDate, s.loc))
}

func (s *Service) Disbursements(ctx context.Context, activityID uuid.UUID, cycle int) ([]models.Disbursement, error) {
	return s.repo.ListDisbursements(ctx, activityID, cycle)
}

func (s *Service) payees(ctx context.Context, tx *gorm.DB, activity *models.Activity, members []models.ActivityMember, perShare decimal.Decimal) ([]payee, []uuid.UUID, error) {
	loanRepo := s.loans.WithTx(tx)
	fineRepo := s.fines.WithTx(tx)
	contribRepo := s.contributions.WithTx(tx)

	var out []payee
	var excluded []uuid.UUID
	for _, m := range members {
		hasLoan, err := loanRepo.HasActive(ctx, activity.ID, m.MemberID)
		if err != nil {
			return nil, nil, err
		}
		owesFine, err := fineRepo.HasUnpaid(ctx, activity.ID, m.MemberID)
		if err != nil {
			return nil, nil, err
		}
		if hasLoan || owesFine {
			excluded = append(excluded, m.MemberID)
			continue
		}
		p := payee{
			member:    m,
			dividend:  perShare.Mul(decimal.NewFromInt(int64(m.Shares))),
			principal: decimal.Zero,
		}
		if activity.DividendMode == enums.DividendModeDividendsAndPrincipal {
			p.principal, err = contribRepo.SumForMember(ctx, activity.ID, activity.CycleNumber, m.MemberID)
			if err != nil {
				return nil, nil, err
			}
		}
		if p.dividend.Add(p.principal).IsPositive() {
			out = append(out, p)
		}
	}
	return out, excluded, nil
}

// roll opens the next cycle. Contributions resume on the next scheduled date
// after today and the dividend date moves one year on.
func (s *Service) roll(ctx context.Context, repo *activities.Repository, activity *models.Activity, today time.Time) (int, error) {
	schedule := activities.ScheduleFor(activity, s.loc)
	next := schedule.Date(0)
	if k, ok := schedule.Position(today); ok {
		next = schedule.Date(k + 1)
	}
	var nextDividend *time.Time
	if activity.NextDividendDate != nil {
		d := clock.StartOfDay(*activity.NextDividendDate, s.loc).AddDate(1, 0, 0)
		nextDividend = &d
	}
	cycle := activity.CycleNumber + 1
	if err := repo.AdvanceCycle(ctx, activity.ID, cycle, next, nextDividend); err != nil {
		return 0, err
	}
	if err := repo.OpenCycle(ctx, activity.ID, cycle); err != nil {
		return 0, err
	}
	return cycle, nil
}

func notFound(err error, msg string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return err
}
