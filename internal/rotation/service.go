package rotation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

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
	"github.com/angelmondragon/chama-backend/pkg/outbox"
	"github.com/angelmondragon/chama-backend/pkg/outbox/payloads"
)

const defaultShuffleAttempts = 1000

type ServiceParams struct {
	Store           *ledger.Store
	Repo            *Repository
	Activities      *activities.Repository
	Contributions   *contributions.Repository
	Transfers       transfers.Repository
	Events          outbox.Emitter
	Location        *time.Location
	ShuffleAttempts int
	Rand            *rand.Rand
	Logger          *logger.Logger
}

// Service runs merry-go-round cycles: order generation, swaps and payouts.
type Service struct {
	store         *ledger.Store
	repo          *Repository
	activities    *activities.Repository
	contributions *contributions.Repository
	transfers     transfers.Repository
	events        outbox.Emitter
	loc           *time.Location
	attempts      int
	logg          *logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	if params.Repo == nil || params.Activities == nil || params.Contributions == nil || params.Transfers == nil {
		return nil, fmt.Errorf("rotation, activities, contributions and transfers repositories required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	loc := params.Location
	if loc == nil {
		loc = clock.EAT()
	}
	attempts := params.ShuffleAttempts
	if attempts <= 0 {
		attempts = defaultShuffleAttempts
	}
	rng := params.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		store:         params.Store,
		repo:          params.Repo,
		activities:    params.Activities,
		contributions: params.Contributions,
		transfers:     params.Transfers,
		events:        params.Events,
		loc:           loc,
		attempts:      attempts,
		logg:          params.Logger,
		rng:           rng,
	}, nil
}

// Payout is the result of one disbursement.
type Payout struct {
	Slot           models.RotationSlot
	Amount         decimal.Decimal
	Transfer       *models.Transfer
	CycleCompleted bool
	NextCycle      int
}

// GenerateOrder creates the slots of the activity's current cycle, starting at
// its next contribution date.
func (s *Service) GenerateOrder(ctx context.Context, activityID uuid.UUID) ([]models.RotationSlot, error) {
	var slots []models.RotationSlot
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		activity, err := s.lockRotation(ctx, uow.Tx(), activityID)
		if err != nil {
			return err
		}
		slots, err = s.generate(ctx, uow.Tx(), activity, activity.CycleNumber, activity.NextContributionDate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// Slots lists the current cycle's order.
func (s *Service) Slots(ctx context.Context, activityID uuid.UUID) ([]models.RotationSlot, error) {
	activity, err := s.activities.FindActivity(ctx, activityID)
	if err != nil {
		return nil, notFound(err, "activity not found")
	}
	return s.repo.ListSlots(ctx, activity.ID, activity.CycleNumber)
}

// CurrentSlot is the first slot of the current cycle still waiting for its payout.
func (s *Service) CurrentSlot(ctx context.Context, activityID uuid.UUID) (*models.RotationSlot, error) {
	slots, err := s.Slots(ctx, activityID)
	if err != nil {
		return nil, err
	}
	for i := range slots {
		if !slots[i].Fulfilled {
			return &slots[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no open rotation slot")
}

// Swap exchanges the recipients of two positions, which moves each member to
// the other's order and receiving date. Both slots must be untouched. When one
// of them is the date members are currently paying into, those contributions
// follow the incoming recipient.
func (s *Service) Swap(ctx context.Context, activityID uuid.UUID, orderA, orderB int) ([]models.RotationSlot, error) {
	if orderA == orderB {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot swap a position with itself")
	}
	var out []models.RotationSlot
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		activity, err := s.lockRotation(ctx, uow.Tx(), activityID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(uow.Tx())
		slots, err := repo.LockSlots(ctx, activity.ID, activity.CycleNumber)
		if err != nil {
			return err
		}
		a, b := findOrder(slots, orderA), findOrder(slots, orderB)
		if a == nil || b == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "rotation position not found")
		}
		for _, slot := range []*models.RotationSlot{a, b} {
			if slot.Fulfilled || !slot.ReceivedAmount.IsZero() {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid swap: slot has already received funds").
					WithDetails(map[string]any{"order_in_rotation": slot.OrderInRotation})
			}
		}

		contribRepo := s.contributions.WithTx(uow.Tx())
		current, ok, err := contribRepo.LatestDate(ctx, activity.ID, activity.CycleNumber)
		if err != nil {
			return err
		}
		if ok {
			switch {
			case a.ReceivingDate.Equal(current):
				_, err = contribRepo.Reattribute(ctx, activity.ID, activity.CycleNumber, current, b.RecipientID)
			case b.ReceivingDate.Equal(current):
				_, err = contribRepo.Reattribute(ctx, activity.ID, activity.CycleNumber, current, a.RecipientID)
			}
			if err != nil {
				return err
			}
		}

		now := uow.Now()
		if err := repo.SetRecipient(ctx, a.ID, b.RecipientID, now); err != nil {
			return err
		}
		if err := repo.SetRecipient(ctx, b.ID, a.RecipientID, now); err != nil {
			return err
		}
		out, err = repo.ListSlots(ctx, activity.ID, activity.CycleNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Disburse pays the earliest due slot what was contributed for its date, up to
// the slot's expected amount. Calling it again after late contributions pays the
// difference. The cycle rolls over once every slot is fulfilled.
func (s *Service) Disburse(ctx context.Context, activityID uuid.UUID) (*Payout, error) {
	var payout *Payout
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		activity, err := s.lockRotation(ctx, uow.Tx(), activityID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(uow.Tx())
		slots, err := repo.LockSlots(ctx, activity.ID, activity.CycleNumber)
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "rotation order not generated")
		}
		now := uow.Now()
		slot := dueSlot(slots, now, s.loc)
		if slot == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no rotation slot is due")
		}

		pooled, err := s.contributions.WithTx(uow.Tx()).SumForDate(ctx, activity.ID, activity.CycleNumber, slot.ReceivingDate)
		if err != nil {
			return err
		}
		amount := decimal.Min(pooled, slot.ExpectedAmount).Sub(slot.ReceivedAmount)
		if !amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no new contributions to disburse").
				WithDetails(map[string]any{"pooled": pooled.StringFixed(2), "received": slot.ReceivedAmount.StringFixed(2)})
		}

		recipient := slot.RecipientID
		transfer, err := transfers.RecordLocal(ctx, uow, s.transfers, s.loc, transfers.LocalInput{
			Kind:           enums.TransferKindRotationDisbursement,
			Amount:         amount,
			From:           ledger.ActivityAccount(activity.ID),
			To:             ledger.Wallet(recipient),
			MemberID:       &recipient,
			GroupID:        &activity.GroupID,
			ActivityID:     &activity.ID,
			Note:           fmt.Sprintf("rotation payout %d of cycle %d", slot.OrderInRotation, activity.CycleNumber),
			AllowOverdraft: true,
		})
		if err != nil {
			return err
		}

		slot.ReceivedAmount = slot.ReceivedAmount.Add(amount)
		slot.Fulfilled = slot.ReceivedAmount.Equal(slot.ExpectedAmount)
		if err := repo.RecordPayout(ctx, slot.ID, slot.ReceivedAmount, slot.Fulfilled, now); err != nil {
			return err
		}
		if err := s.events.Emit(ctx, uow.Tx(), outbox.DomainEvent{
			EventType:     enums.EventRotationDisbursed,
			AggregateType: enums.AggregateRotationSlot,
			AggregateID:   slot.ID,
			Data: payloads.RotationDisbursedEvent{
				SlotID:          slot.ID,
				ActivityID:      activity.ID,
				CycleNumber:     activity.CycleNumber,
				OrderInRotation: slot.OrderInRotation,
				RecipientID:     recipient,
				Amount:          amount,
				Fulfilled:       slot.Fulfilled,
				TransferID:      transfer.ID,
			},
			OccurredAt: now,
		}); err != nil {
			return err
		}

		payout = &Payout{Slot: *slot, Amount: amount, Transfer: transfer, NextCycle: activity.CycleNumber}
		if !allFulfilled(slots) {
			return nil
		}
		next, err := s.advance(ctx, uow.Tx(), activity, slots[len(slots)-1].ReceivingDate)
		if err != nil {
			return err
		}
		payout.CycleCompleted = true
		payout.NextCycle = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"activity_id": activityID.String(),
		"slot_id":     payout.Slot.ID.String(),
		"amount":      payout.Amount.StringFixed(2),
		"fulfilled":   payout.Slot.Fulfilled,
	}), "rotation payout disbursed")
	return payout, nil
}

// advance opens the next cycle one interval after lastDate and generates its order.
func (s *Service) advance(ctx context.Context, tx *gorm.DB, activity *models.Activity, lastDate time.Time) (int, error) {
	schedule := activities.ScheduleFor(activity, s.loc)
	k, ok := schedule.Position(lastDate)
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "last rotation date precedes the schedule")
	}
	next := schedule.Date(k + 1)
	cycle := activity.CycleNumber + 1

	activityRepo := s.activities.WithTx(tx)
	if err := activityRepo.AdvanceCycle(ctx, activity.ID, cycle, next, activity.NextDividendDate); err != nil {
		return 0, err
	}
	if err := activityRepo.OpenCycle(ctx, activity.ID, cycle); err != nil {
		return 0, err
	}
	activity.CycleNumber = cycle
	activity.NextContributionDate = next.UTC()
	if _, err := s.generate(ctx, tx, activity, cycle, next); err != nil {
		return 0, err
	}
	return cycle, nil
}

func (s *Service) generate(ctx context.Context, tx *gorm.DB, activity *models.Activity, cycle int, start time.Time) ([]models.RotationSlot, error) {
	repo := s.repo.WithTx(tx)
	existing, err := repo.CountSlots(ctx, activity.ID, cycle)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "rotation order already generated for this cycle")
	}
	members, err := s.activities.WithTx(tx).ListActiveMembers(ctx, activity.ID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "activity has no active members")
	}

	seats := make([]Seat, len(members))
	for i, m := range members {
		seats[i] = Seat{MemberID: m.MemberID, Shares: m.Shares}
	}
	order := s.build(seats)

	schedule := activities.ScheduleFor(activity, s.loc)
	k, ok := schedule.Position(start)
	if !ok {
		k = 0
	}
	expected := activity.ContributionAmount.Mul(decimal.NewFromInt(int64(len(order.Recipients))))
	slots := make([]models.RotationSlot, len(order.Recipients))
	for i, recipient := range order.Recipients {
		slots[i] = models.RotationSlot{
			ActivityID:      activity.ID,
			CycleNumber:     cycle,
			OrderInRotation: i + 1,
			RecipientID:     recipient,
			ReceivingDate:   schedule.Date(k + i),
			ExpectedAmount:  expected,
			ReceivedAmount:  decimal.Zero,
		}
	}
	if err := repo.CreateSlots(ctx, slots); err != nil {
		return nil, err
	}
	if order.Collisions > 0 {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"activity_id": activity.ID.String(),
			"cycle":       cycle,
			"collisions":  order.Collisions,
		}), "rotation order has consecutive seats for the same member")
	}
	return slots, nil
}

func (s *Service) build(seats []Seat) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildOrder(seats, s.attempts, s.rng)
}

func (s *Service) lockRotation(ctx context.Context, tx *gorm.DB, activityID uuid.UUID) (*models.Activity, error) {
	activity, err := s.activities.WithTx(tx).LockActivity(ctx, activityID)
	if err != nil {
		return nil, notFound(err, "activity not found")
	}
	if activity.Type != enums.ActivityTypeMerryGoRound {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "activity is not a merry-go-round")
	}
	if !activity.Active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "activity is closed")
	}
	return activity, nil
}

func dueSlot(slots []models.RotationSlot, now time.Time, loc *time.Location) *models.RotationSlot {
	today := clock.StartOfDay(now, loc)
	for i := range slots {
		if slots[i].Fulfilled {
			continue
		}
		if clock.StartOfDay(slots[i].ReceivingDate, loc).After(today) {
			return nil
		}
		return &slots[i]
	}
	return nil
}

func findOrder(slots []models.RotationSlot, order int) *models.RotationSlot {
	for i := range slots {
		if slots[i].OrderInRotation == order {
			return &slots[i]
		}
	}
	return nil
}

func allFulfilled(slots []models.RotationSlot) bool {
	for _, slot := range slots {
		if !slot.Fulfilled {
			return false
		}
	}
	return true
}

func notFound(err error, msg string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return err
}
