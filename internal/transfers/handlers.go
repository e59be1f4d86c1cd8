package transfers

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/internal/gateway"
	"github.com/angelmondragon/chama-backend/internal/tasks"
	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
	"github.com/angelmondragon/chama-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type InitiatorParams struct {
	Repo   Repository
	Tx     txRunner
	Client gateway.Client
	Events outbox.Emitter
	Clock  clock.Clock
	Logger *logger.Logger
}

// Initiator sends pending external transfers to the gateway. It serves both the
// deposit and the withdrawal task kinds.
type Initiator struct {
	repo   Repository
	tx     txRunner
	client gateway.Client
	events outbox.Emitter
	clock  clock.Clock
	logg   *logger.Logger
}

var (
	_ tasks.Handler         = (*Initiator)(nil)
	_ tasks.TerminalHandler = (*Initiator)(nil)
)

func NewInitiator(p InitiatorParams) (*Initiator, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("transfers repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Client == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if p.Events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Clock == nil {
		p.Clock = clock.System()
	}
	return &Initiator{
		repo:   p.Repo,
		tx:     p.Tx,
		client: p.Client,
		events: p.Events,
		clock:  p.Clock,
		logg:   p.Logger,
	}, nil
}

// Register binds the initiator to its task kinds.
func (i *Initiator) Register(reg *tasks.Registry) {
	reg.Register(enums.TaskKindInitiateDeposit, i)
	reg.Register(enums.TaskKindInitiateWithdrawal, i)
}

func (i *Initiator) Handle(ctx context.Context, task models.Task) error {
	transfer, err := i.load(ctx, task)
	if err != nil {
		return err
	}
	if transfer.Status != enums.TransferStatusPending || transfer.GatewayRef != nil {
		return nil
	}
	if i.logg != nil {
		ctx = i.logg.WithIdempotencyCode(ctx, transfer.IdempotencyCode)
	}

	var resp *gateway.InitiateResponse
	switch transfer.Kind {
	case enums.TransferKindDeposit, enums.TransferKindRegistrationFee:
		resp, err = i.client.InitiateDeposit(ctx, gateway.DepositRequest{
			TransferID:       transfer.ID,
			Kind:             transfer.Kind,
			Phone:            transfer.Origin,
			Amount:           transfer.Amount,
			AccountReference: transfer.RequestCode,
			Description:      transfer.Note,
		})
	case enums.TransferKindWithdrawal:
		resp, err = i.client.InitiateWithdrawal(ctx, gateway.WithdrawalRequest{
			TransferID: transfer.ID,
			Phone:      transfer.Destination,
			Amount:     transfer.Amount,
			Remarks:    transfer.Note,
		})
	default:
		return pkgerrors.Newf(pkgerrors.CodeInternal, "transfer kind %s is not initiated through the gateway", transfer.Kind)
	}
	if err != nil {
		return err
	}
	if resp == nil || resp.RequestID == "" {
		return pkgerrors.New(pkgerrors.CodeGatewayTerminal, "gateway accepted the request without a request id")
	}

	attached, err := i.repo.AttachGatewayRef(ctx, transfer.ID, resp.RequestID, i.clock.Now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach gateway reference")
	}
	if !attached && i.logg != nil {
		i.logg.Warn(ctx, "transfer settled before its gateway reference was attached")
	}
	if attached && i.logg != nil {
		i.logg.Info(i.logg.WithField(ctx, "gateway_ref", resp.RequestID), "gateway request initiated")
	}
	return nil
}

// OnTerminal marks the transfer failed once the gateway cannot be reached or
// rejects the request. Nothing moved, so nothing is reversed.
func (i *Initiator) OnTerminal(ctx context.Context, task models.Task, cause error) error {
	transfer, err := i.load(ctx, task)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil
		}
		return err
	}
	reason := "gateway initiation failed"
	if cause != nil {
		reason = cause.Error()
	}
	return i.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := i.repo.WithTx(tx)
		now := i.clock.Now()
		changed, err := repo.MarkFailed(ctx, transfer.ID, reason, now)
		if err != nil || !changed {
			return err
		}
		failed, err := repo.FindByID(ctx, transfer.ID)
		if err != nil {
			return err
		}
		if i.logg != nil {
			logCtx := i.logg.WithIdempotencyCode(ctx, failed.IdempotencyCode)
			i.logg.Error(logCtx, "transfer failed at initiation", cause)
		}
		return EmitSettled(ctx, i.events, tx, failed)
	})
}

func (i *Initiator) load(ctx context.Context, task models.Task) (*models.Transfer, error) {
	var payload InitiatePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode initiate payload")
	}
	transfer, err := i.repo.FindByID(ctx, payload.TransferID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transfer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transfer")
	}
	return transfer, nil
}
