package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/internal/gateway"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/internal/transfers"
	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
	"github.com/angelmondragon/chama-backend/pkg/metrics"
	"github.com/angelmondragon/chama-backend/pkg/outbox"
)

// Outcome is what a gateway result did to the pending-transfer ledger.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeDuplicate means no pending transfer matched; replays land here.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeMismatch means a pending transfer carries the code but the amount,
	// phone or day disagree. Nothing is mutated.
	OutcomeMismatch Outcome = "mismatch"
	OutcomePending  Outcome = "pending"
)

// RegistrationMarker flags a member's group registration fee as paid.
type RegistrationMarker interface {
	MarkRegistrationFeePaid(ctx context.Context, tx *gorm.DB, groupID, memberID uuid.UUID) error
}

type Params struct {
	Store              *ledger.Store
	Repo               transfers.Repository
	Events             outbox.Emitter
	Registrations      RegistrationMarker
	Metrics            *metrics.SettlementMetrics
	PlatformFeePercent decimal.Decimal
	Location           *time.Location
	Clock              clock.Clock
	Logger             *logger.Logger
}

// Reconciler settles pending external transfers from gateway results.
type Reconciler struct {
	store         *ledger.Store
	repo          transfers.Repository
	events        outbox.Emitter
	registrations RegistrationMarker
	metrics       *metrics.SettlementMetrics
	platformFee   decimal.Decimal
	loc           *time.Location
	clock         clock.Clock
	logg          *logger.Logger
}

func New(p Params) (*Reconciler, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("transfers repository required")
	}
	if p.Events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Registrations == nil {
		return nil, fmt.Errorf("registration marker required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.PlatformFeePercent.IsNegative() || p.PlatformFeePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("platform fee percent must be between 0 and 100")
	}
	if p.Location == nil {
		p.Location = clock.EAT()
	}
	if p.Clock == nil {
		p.Clock = clock.System()
	}
	return &Reconciler{
		store:         p.Store,
		repo:          p.Repo,
		events:        p.Events,
		registrations: p.Registrations,
		metrics:       p.Metrics,
		platformFee:   p.PlatformFeePercent,
		loc:           p.Location,
		clock:         p.Clock,
		logg:          p.Logger,
	}, nil
}

// Reconcile matches result to exactly one pending transfer created today and
// settles it. A result with no match is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, result gateway.Result) (Outcome, error) {
	if result.Code == "" || !result.Kind.IsExternal() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "gateway result needs a request code and an external kind")
	}
	ctx = r.logg.WithIdempotencyCode(ctx, result.Code)
	if result.Pending {
		return OutcomePending, nil
	}

	var outcome Outcome
	err := r.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		repo := r.repo.WithTx(uow.Tx())
		transfer, err := repo.FindPendingByCodeForUpdate(ctx, result.Code, result.Kind)
		if err != nil {
			if db.IsNotFound(err) {
				outcome = OutcomeDuplicate
				return nil
			}
			return err
		}
		if reason := r.mismatch(transfer, result, uow.Now()); reason != "" {
			r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
				"transfer_id": transfer.ID.String(),
				"reason":      reason,
			}), "gateway result does not match pending transfer")
			outcome = OutcomeMismatch
			return nil
		}
		outcome, err = r.apply(ctx, uow, transfer, result)
		return err
	})
	return r.finish(ctx, result.Kind, outcome, err)
}

// Finalize settles a specific transfer from a polled status, without the same-day
// predicate. Used by the pending sweep.
func (r *Reconciler) Finalize(ctx context.Context, transferID uuid.UUID, result gateway.Result) (Outcome, error) {
	if result.Pending {
		return OutcomePending, nil
	}
	var (
		outcome Outcome
		kind    enums.TransferKind
	)
	err := r.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		transfer, err := r.repo.WithTx(uow.Tx()).LockByID(ctx, transferID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "transfer not found")
			}
			return err
		}
		kind = transfer.Kind
		ctx = r.logg.WithIdempotencyCode(ctx, transfer.IdempotencyCode)
		if transfer.Status != enums.TransferStatusPending {
			outcome = OutcomeDuplicate
			return nil
		}
		if result.Succeeded() && result.Amount.IsPositive() && !result.Amount.Equal(transfer.Amount) {
			outcome = OutcomeMismatch
			r.logg.Warn(ctx, "polled amount does not match pending transfer")
			return nil
		}
		outcome, err = r.apply(ctx, uow, transfer, result)
		return err
	})
	return r.finish(ctx, kind, outcome, err)
}

// Fail marks a pending transfer failed without touching balances.
func (r *Reconciler) Fail(ctx context.Context, transferID uuid.UUID, reason string) (Outcome, error) {
	return r.Finalize(ctx, transferID, gateway.Result{ResultCode: -1, ResultDesc: reason})
}

func (r *Reconciler) finish(ctx context.Context, kind enums.TransferKind, outcome Outcome, err error) (Outcome, error) {
	if err != nil {
		r.logg.Error(ctx, "settlement failed; manual reconciliation may be needed", err)
		r.metrics.IncReconciled(kind.String(), "error")
		return "", err
	}
	r.metrics.IncReconciled(kind.String(), string(outcome))
	if outcome == OutcomeDuplicate {
		r.logg.Info(ctx, "no pending transfer for gateway result")
	}
	return outcome, nil
}

func (r *Reconciler) mismatch(t *models.Transfer, result gateway.Result, now time.Time) string {
	if !clock.SameDay(t.CreatedAt, now, r.loc) {
		return "transfer was not created today"
	}
	if !result.Succeeded() {
		return ""
	}
	if !result.HasPayment() {
		return "successful result without amount or receipt"
	}
	if !result.Amount.Equal(t.Amount) {
		return "amount differs"
	}
	if result.Phone != "" && result.Phone != transfers.GatewayPhone(t) {
		return "phone differs"
	}
	return ""
}

func (r *Reconciler) apply(ctx context.Context, uow *ledger.UnitOfWork, t *models.Transfer, result gateway.Result) (Outcome, error) {
	repo := r.repo.WithTx(uow.Tx())
	now := uow.Now()

	if !result.Succeeded() {
		reason := result.ResultDesc
		if reason == "" {
			reason = fmt.Sprintf("gateway result code %d", result.ResultCode)
		}
		changed, err := repo.MarkFailed(ctx, t.ID, reason, now)
		if err != nil {
			return "", err
		}
		if !changed {
			return "", noLongerPending(t)
		}
		settled, err := repo.FindByID(ctx, t.ID)
		if err != nil {
			return "", err
		}
		return OutcomeFailed, transfers.EmitSettled(ctx, r.events, uow.Tx(), settled)
	}

	if err := r.mutate(ctx, uow, t); err != nil {
		return "", err
	}
	changed, err := repo.MarkCompleted(ctx, t.ID, result.Receipt, now)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return "", pkgerrors.Wrap(pkgerrors.CodeDuplicateCallback, err, "receipt already recorded")
		}
		return "", err
	}
	if !changed {
		return "", noLongerPending(t)
	}
	settled, err := repo.FindByID(ctx, t.ID)
	if err != nil {
		return "", err
	}
	return OutcomeCompleted, transfers.EmitSettled(ctx, r.events, uow.Tx(), settled)
}

func (r *Reconciler) mutate(ctx context.Context, uow *ledger.UnitOfWork, t *models.Transfer) error {
	if t.MemberID == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "external transfer has no member")
	}
	wallet := ledger.Wallet(*t.MemberID)

	switch t.Kind {
	case enums.TransferKindDeposit:
		_, err := uow.CreditExternal(ctx, wallet, t.Amount, "wallet deposit", &t.ID)
		return err
	case enums.TransferKindWithdrawal:
		_, err := uow.DebitExternal(ctx, wallet, t.Amount, "wallet withdrawal", &t.ID)
		return err
	case enums.TransferKindRegistrationFee:
		return r.registrationFee(ctx, uow, t, wallet)
	default:
		return pkgerrors.Newf(pkgerrors.CodeInternal, "no settlement for transfer kind %s", t.Kind)
	}
}

// registrationFee credits the payer's wallet and splits it between the group and
// the platform. The wallet is not pre-checked; the unit still rejects a negative end.
func (r *Reconciler) registrationFee(ctx context.Context, uow *ledger.UnitOfWork, t *models.Transfer, wallet ledger.AccountRef) error {
	if t.GroupID == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "registration fee transfer has no group")
	}
	group := ledger.GroupAccount(*t.GroupID)
	platform := ledger.Platform()
	if err := uow.Lock(ctx, wallet, group, platform); err != nil {
		return err
	}

	share, net := SplitRegistrationFee(t.Amount, r.platformFee)
	if _, err := uow.CreditExternal(ctx, wallet, t.Amount, "registration fee", &t.ID); err != nil {
		return err
	}
	if net.IsPositive() {
		if _, err := uow.Move(ctx, ledger.MoveInput{
			Amount: net, From: wallet, To: group, Note: "registration fee", TransferID: &t.ID, AllowOverdraft: true,
		}); err != nil {
			return err
		}
	}
	if share.IsPositive() {
		if _, err := uow.Move(ctx, ledger.MoveInput{
			Amount: share, From: wallet, To: platform, Note: "registration fee platform share", TransferID: &t.ID, AllowOverdraft: true,
		}); err != nil {
			return err
		}
	}
	return r.registrations.MarkRegistrationFeePaid(ctx, uow.Tx(), *t.GroupID, *t.MemberID)
}

// noLongerPending rolls the unit back when another writer settled t after it was read.
func noLongerPending(t *models.Transfer) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "transfer is no longer pending").
		WithDetails(map[string]any{"transfer_id": t.ID.String()})
}

// SplitRegistrationFee returns the platform share (rounded to cents) and the group's net.
func SplitRegistrationFee(amount, percent decimal.Decimal) (share, net decimal.Decimal) {
	share = amount.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)
	return share, amount.Sub(share)
}
