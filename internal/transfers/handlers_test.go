package transfers

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/chama-backend/internal/gateway"
	mock_gateway "github.com/angelmondragon/chama-backend/internal/gateway/mocks"
	"github.com/angelmondragon/chama-backend/internal/tasks"
	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

func newInitiator(t *testing.T, f *fixture, client gateway.Client) *Initiator {
	t.Helper()
	initiator, err := NewInitiator(InitiatorParams{
		Repo:   f.repo,
		Tx:     f.client,
		Client: client,
		Events: f.events,
		Clock:  clock.Fixed(f.now),
	})
	require.NoError(t, err)
	return initiator
}

func (f *fixture) taskFor(t *testing.T, transfer *models.Transfer) models.Task {
	t.Helper()
	var task models.Task
	require.NoError(t, f.client.DB().Where("transfer_id = ?", transfer.ID).First(&task).Error)
	return task
}

func TestInitiator_DepositAttachesGatewayRef(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "254712345678", "")
	transfer, err := f.svc.RequestDeposit(ctx, DepositInput{MemberID: m.ID, Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	client := mock_gateway.NewMockClient(ctrl)
	client.EXPECT().
		InitiateDeposit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req gateway.DepositRequest) (*gateway.InitiateResponse, error) {
			assert.Equal(t, transfer.ID, req.TransferID)
			assert.Equal(t, transfer.Kind, req.Kind)
			assert.Equal(t, "254712345678", req.Phone)
			assert.Equal(t, transfer.RequestCode, req.AccountReference)
			assert.True(t, req.Amount.Equal(decimal.NewFromInt(500)))
			return &gateway.InitiateResponse{RequestID: "ws_CO_191220191020363925"}, nil
		})

	initiator := newInitiator(t, f, client)
	task := f.taskFor(t, transfer)
	require.NoError(t, initiator.Handle(ctx, task))

	reloaded, err := f.repo.FindByID(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", reloaded.IdempotencyCode)
	require.NotNil(t, reloaded.GatewayRef)

	// a replayed task does not initiate twice
	require.NoError(t, initiator.Handle(ctx, task))
}

func TestInitiator_WithdrawalPaysDestination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "254722000000", "100")
	transfer, err := f.svc.RequestWithdrawal(ctx, WithdrawalInput{MemberID: m.ID, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	client := mock_gateway.NewMockClient(ctrl)
	client.EXPECT().
		InitiateWithdrawal(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req gateway.WithdrawalRequest) (*gateway.InitiateResponse, error) {
			assert.Equal(t, "254722000000", req.Phone)
			return &gateway.InitiateResponse{RequestID: "10571-7910404-1"}, nil
		})

	require.NoError(t, newInitiator(t, f, client).Handle(ctx, f.taskFor(t, transfer)))
	reloaded, err := f.repo.FindByID(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, "10571-7910404-1", reloaded.IdempotencyCode)
}

func TestInitiator_PassesTransientErrorsThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "254712345678", "")
	transfer, err := f.svc.RequestDeposit(ctx, DepositInput{MemberID: m.ID, Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	client := mock_gateway.NewMockClient(ctrl)
	client.EXPECT().
		InitiateDeposit(gomock.Any(), gomock.Any()).
		Return(nil, pkgerrors.New(pkgerrors.CodeGatewayTransient, "timeout"))

	err = newInitiator(t, f, client).Handle(ctx, f.taskFor(t, transfer))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayTransient))

	reloaded, err := f.repo.FindByID(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransferStatusPending, reloaded.Status)
	assert.Nil(t, reloaded.GatewayRef)
}

func TestInitiator_OnTerminalMarksFailedAndEmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "254712345678", "")
	transfer, err := f.svc.RequestDeposit(ctx, DepositInput{MemberID: m.ID, Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	initiator := newInitiator(t, f, mock_gateway.NewMockClient(ctrl))
	task := f.taskFor(t, transfer)

	cause := pkgerrors.Wrap(pkgerrors.CodeGatewayTerminal, errors.New("rejected"), "gateway rejected request")
	require.NoError(t, initiator.OnTerminal(ctx, task, cause))
	require.NoError(t, initiator.OnTerminal(ctx, task, cause))

	reloaded, err := f.repo.FindByID(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransferStatusFailed, reloaded.Status)
	require.NotNil(t, reloaded.FailureReason)
	assert.Contains(t, *reloaded.FailureReason, "gateway rejected request")
	assert.Equal(t, int64(1), f.count(t, &models.OutboxEvent{}, "event_type = ? AND aggregate_id = ?", enums.EventTransferFailed, transfer.ID))
}

func TestInitiator_RegistersBothKinds(t *testing.T) {
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	initiator := newInitiator(t, f, mock_gateway.NewMockClient(ctrl))
	reg := tasks.NewRegistry()
	initiator.Register(reg)

	for _, kind := range []enums.TaskKind{enums.TaskKindInitiateDeposit, enums.TaskKindInitiateWithdrawal} {
		h, ok := reg.Lookup(kind)
		require.True(t, ok, kind)
		assert.Same(t, initiator, h)
	}
}
