package contributions_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/chama-backend/internal/activities/activitytest"
	"github.com/angelmondragon/chama-backend/internal/contributions"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/internal/transfers"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

func newService(t *testing.T, env *activitytest.Env) (*contributions.Service, *contributions.Repository) {
	t.Helper()
	repo := contributions.NewRepository(env.Client.DB())
	svc, err := contributions.NewService(contributions.ServiceParams{
		Store:      env.Store,
		Repo:       repo,
		Activities: env.Repo,
		Transfers:  transfers.NewRepository(env.Client.DB()),
		Location:   env.Loc,
		Logger:     env.Logger,
	})
	require.NoError(t, err)
	return svc, repo
}

func TestContribute_MovesWalletIntoActivity(t *testing.T) {
	env := activitytest.New(t)
	fx := env.Seed(activitytest.Spec{Balances: []string{"500", "500", "500"}})
	svc, repo := newService(t, env)
	ctx := context.Background()

	// midweek: still attributed to Monday's date
	env.Now = env.Now.AddDate(0, 0, 2)
	c, err := svc.Contribute(ctx, fx.Activity.ID, fx.Members[1].ID, decimal.NewFromInt(100))
	require.NoError(t, err)

	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, env.Loc)
	assert.True(t, monday.Equal(c.ContributionDate))
	assert.Nil(t, c.RecipientID)
	assert.Equal(t, 1, c.CycleNumber)
	assert.Equal(t, "400.00", env.Balance(ledger.Wallet(fx.Members[1].ID)))
	assert.Equal(t, "100.00", env.Balance(ledger.ActivityAccount(fx.Activity.ID)))

	total, err := repo.SumForDate(ctx, fx.Activity.ID, 1, monday)
	require.NoError(t, err)
	assert.Equal(t, "100.00", total.StringFixed(2))
	assert.Equal(t, int64(1), env.Count(&models.Transfer{}, "kind = ? AND status = ?", enums.TransferKindContribution, enums.TransferStatusCompleted))
}

func TestContribute_AttributesToRotationRecipient(t *testing.T) {
	env := activitytest.New(t)
	fx := env.Seed(activitytest.Spec{Balances: []string{"500", "500", "500"}})
	svc, repo := newService(t, env)
	ctx := context.Background()

	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, env.Loc)
	require.NoError(t, env.Client.DB().Create(&models.RotationSlot{
		ActivityID:      fx.Activity.ID,
		CycleNumber:     1,
		OrderInRotation: 1,
		RecipientID:     fx.Members[2].ID,
		ReceivingDate:   monday.UTC(),
		ExpectedAmount:  decimal.NewFromInt(300),
		ReceivedAmount:  decimal.Zero,
	}).Error)

	c, err := svc.Contribute(ctx, fx.Activity.ID, fx.Members[0].ID, decimal.NewFromInt(100))
	require.NoError(t, err)
	require.NotNil(t, c.RecipientID)
	assert.Equal(t, fx.Members[2].ID, *c.RecipientID)

	latest, ok, err := repo.LatestDate(ctx, fx.Activity.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, monday.Equal(latest))
}

func TestContribute_InsufficientFundsLeavesNothingBehind(t *testing.T) {
	env := activitytest.New(t)
	fx := env.Seed(activitytest.Spec{Balances: []string{"50"}, Shares: []int{1}})
	svc, _ := newService(t, env)

	_, err := svc.Contribute(context.Background(), fx.Activity.ID, fx.Members[0].ID, decimal.NewFromInt(100))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))
	assert.Equal(t, "50.00", env.Balance(ledger.Wallet(fx.Members[0].ID)))
	assert.Equal(t, int64(0), env.Count(&models.Contribution{}, "activity_id = ?", fx.Activity.ID))
	assert.Equal(t, int64(0), env.Count(&models.Transfer{}, "kind = ?", enums.TransferKindContribution))
}

func TestContribute_RejectsFundsReservedForWithdrawal(t *testing.T) {
	env := activitytest.New(t)
	fx := env.Seed(activitytest.Spec{Balances: []string{"500"}, Shares: []int{1}})
	svc, _ := newService(t, env)
	member := fx.Members[0]

	wallet := ledger.Wallet(member.ID).String()
	require.NoError(t, env.Client.DB().Create(&models.Transfer{
		RequestCode:     "WDR-20250106-reserved",
		IdempotencyCode: "conv-reserved",
		Kind:            enums.TransferKindWithdrawal,
		Status:          enums.TransferStatusPending,
		Amount:          decimal.NewFromInt(450),
		Origin:          wallet,
		Destination:     member.Phone,
		MemberID:        &member.ID,
		CreatedAt:       env.Now.UTC(),
	}).Error)

	_, err := svc.Contribute(context.Background(), fx.Activity.ID, member.ID, decimal.NewFromInt(100))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))
	assert.Equal(t, "500.00", env.Balance(ledger.Wallet(member.ID)))

	c, err := svc.Contribute(context.Background(), fx.Activity.ID, member.ID, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, "50.00", c.Amount.StringFixed(2))
	assert.Equal(t, "450.00", env.Balance(ledger.Wallet(member.ID)))
}

func TestContribute_Rejections(t *testing.T) {
	env := activitytest.New(t)
	fx := env.Seed(activitytest.Spec{First: time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), Balances: []string{"500"}})
	svc, _ := newService(t, env)
	ctx := context.Background()

	_, err := svc.Contribute(ctx, fx.Activity.ID, fx.Members[0].ID, decimal.NewFromInt(100))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "before the first date")

	_, err = svc.Contribute(ctx, fx.Activity.ID, fx.Members[0].ID, decimal.RequireFromString("10.001"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	outsider := env.Member("500")
	_, err = svc.Contribute(ctx, fx.Activity.ID, outsider.ID, decimal.NewFromInt(100))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
