package engine

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/chama-backend/internal/activities"
	mock_gateway "github.com/angelmondragon/chama-backend/internal/gateway/mocks"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/internal/tasks"
	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/config"
	"github.com/angelmondragon/chama-backend/pkg/db/dbtest"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			Timezone:                "Africa/Nairobi",
			PendingGrace:            5 * time.Minute,
			PlatformFeePercent:      "10",
			RotationShuffleAttempts: 10,
			SweepBatchSize:          10,
			SweepMaxPollAttempts:    3,
		},
		Gateway: config.GatewayConfig{RetryAttempts: 3, RetryBackoff: time.Minute},
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "engine-test", Output: io.Discard})
}

func TestNew_WiresEveryService(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := dbtest.Open(t)

	e, err := New(context.Background(), Params{
		Config:  testConfig(),
		DB:      client,
		Gateway: mock_gateway.NewMockClient(ctrl),
		Clock:   clock.Fixed(time.Date(2025, 1, 6, 9, 0, 0, 0, clock.EAT())),
		Logger:  testLogger(),
	})
	require.NoError(t, err)

	assert.NotNil(t, e.Activities)
	assert.NotNil(t, e.Transfers)
	assert.NotNil(t, e.Contributions)
	assert.NotNil(t, e.Rotation)
	assert.NotNil(t, e.Loans)
	assert.NotNil(t, e.Fines)
	assert.NotNil(t, e.Dividends)
	assert.NotNil(t, e.Reconciler)
	assert.NotNil(t, e.Initiator)
	assert.NotNil(t, e.Sweeper)

	bal, err := e.Store.Balance(context.Background(), ledger.Platform())
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	reg := tasks.NewRegistry()
	e.RegisterTasks(reg)
	_, ok := reg.Lookup(enums.TaskKindInitiateDeposit)
	assert.True(t, ok)
	_, ok = reg.Lookup(enums.TaskKindInitiateWithdrawal)
	assert.True(t, ok)
}

func TestNew_WithoutGatewaySkipsExternalLegs(t *testing.T) {
	client := dbtest.Open(t)

	e, err := New(context.Background(), Params{Config: testConfig(), DB: client, Logger: testLogger()})
	require.NoError(t, err)
	assert.Nil(t, e.Initiator)
	assert.Nil(t, e.Sweeper)

	reg := tasks.NewRegistry()
	e.RegisterTasks(reg)
	_, ok := reg.Lookup(enums.TaskKindInitiateDeposit)
	assert.False(t, ok)

	member, err := e.Activities.RegisterMember(context.Background(), activities.RegisterMemberInput{
		Phone:    "0712345678",
		FullName: "Wanjiru Kamau",
	})
	require.NoError(t, err)
	bal, err := e.Store.Balance(context.Background(), ledger.Wallet(member.ID))
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(context.Background(), Params{DB: dbtest.Open(t), Logger: testLogger()})
	assert.Error(t, err)

	_, err = New(context.Background(), Params{Config: testConfig(), Logger: testLogger()})
	assert.Error(t, err)

	_, err = New(context.Background(), Params{Config: testConfig(), DB: dbtest.Open(t)})
	assert.Error(t, err)
}
