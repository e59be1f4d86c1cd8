package transfers

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/internal/tasks"
	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/config"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/db/dbtest"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/outbox"
)

type dbDirectory struct{}

func (dbDirectory) FindMember(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Member, error) {
	var m models.Member
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (dbDirectory) FindGroup(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Group, error) {
	var g models.Group
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (dbDirectory) FindGroupMember(ctx context.Context, tx *gorm.DB, groupID, memberID uuid.UUID) (*models.GroupMember, error) {
	var gm models.GroupMember
	if err := tx.WithContext(ctx).Where("group_id = ? AND member_id = ?", groupID, memberID).First(&gm).Error; err != nil {
		return nil, err
	}
	return &gm, nil
}

type fixture struct {
	client *db.Client
	store  *ledger.Store
	repo   Repository
	svc    *Service
	events *outbox.Service
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	f := &fixture{client: client, now: time.Date(2025, 1, 6, 9, 0, 0, 0, clock.EAT())}
	clk := clock.Func(func() time.Time { return f.now })

	store, err := ledger.NewStore(client, ledger.NewRepository(client.DB()), clk)
	require.NoError(t, err)
	require.NoError(t, store.EnsurePlatformAccount(context.Background()))
	queue, err := tasks.NewQueue(tasks.NewRepository(client.DB()), config.GatewayConfig{}, clk)
	require.NoError(t, err)

	f.store = store
	f.repo = NewRepository(client.DB())
	f.events = outbox.NewService(outbox.NewRepository(client.DB()), nil)
	f.svc, err = NewService(ServiceParams{
		Store:     store,
		Repo:      f.repo,
		Queue:     queue,
		Directory: dbDirectory{},
		Events:    f.events,
		Clock:     clk,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) member(t *testing.T, phone, balance string) *models.Member {
	t.Helper()
	ctx := context.Background()
	m := &models.Member{Phone: phone, FullName: "Member " + phone}
	require.NoError(t, f.client.DB().Create(m).Error)
	require.NoError(t, f.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		if _, err := uow.OpenAccount(ctx, ledger.Wallet(m.ID)); err != nil {
			return err
		}
		if balance == "" {
			return nil
		}
		_, err := uow.CreditExternal(ctx, ledger.Wallet(m.ID), decimal.RequireFromString(balance), "seed", nil)
		return err
	}))
	return m
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func TestDeriveCode(t *testing.T) {
	day := time.Date(2025, 1, 6, 0, 0, 0, 0, clock.EAT())
	code := DeriveCode(enums.TransferKindDeposit, "254712345678", "wallet:x", day, "n1")
	assert.Regexp(t, regexp.MustCompile(`^DEP-20250106-[0-9A-F]{10}$`), code)
	assert.Equal(t, code, DeriveCode(enums.TransferKindDeposit, "254712345678", "wallet:x", day, "n1"))
	assert.NotEqual(t, code, DeriveCode(enums.TransferKindDeposit, "254712345678", "wallet:x", day, "n2"))
	assert.NotEqual(t, code, DeriveCode(enums.TransferKindDeposit, "254712345678", "wallet:x", day.AddDate(0, 0, 1), "n1"))
	assert.Regexp(t, `^WDR-`, DeriveCode(enums.TransferKindWithdrawal, "a", "b", day, ""))
}

func TestRequestDeposit_CreatesPendingTransferAndTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "254712345678", "")

	transfer, err := f.svc.RequestDeposit(ctx, DepositInput{MemberID: m.ID, Amount: decimal.NewFromInt(500), Nonce: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, enums.TransferStatusPending, transfer.Status)
	assert.Equal(t, "254712345678", transfer.Origin)
	assert.Equal(t, transfer.RequestCode, transfer.IdempotencyCode)
	assert.Regexp(t, `^DEP-20250106-`, transfer.RequestCode)
	assert.Equal(t, int64(1), f.count(t, &models.Task{}, "transfer_id = ? AND kind = ?", transfer.ID, enums.TaskKindInitiateDeposit))

	again, err := f.svc.RequestDeposit(ctx, DepositInput{MemberID: m.ID, Amount: decimal.NewFromInt(500), Nonce: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, transfer.ID, again.ID)
	assert.Equal(t, int64(1), f.count(t, &models.Task{}, "kind = ?", enums.TaskKindInitiateDeposit))

	bal, err := f.store.Balance(ctx, ledger.Wallet(m.ID))
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestRequestDeposit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestDeposit(ctx, DepositInput{MemberID: uuid.New(), Amount: decimal.NewFromInt(-1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.RequestDeposit(ctx, DepositInput{MemberID: uuid.New(), Amount: decimal.NewFromInt(10)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRequestWithdrawal_ReservesPendingAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "254712345678", "100")

	first, err := f.svc.RequestWithdrawal(ctx, WithdrawalInput{MemberID: m.ID, Amount: decimal.NewFromInt(70)})
	require.NoError(t, err)
	assert.Equal(t, "254712345678", first.Destination)
	assert.Equal(t, "254712345678", GatewayPhone(first))

	_, err = f.svc.RequestWithdrawal(ctx, WithdrawalInput{MemberID: m.ID, Amount: decimal.NewFromInt(40)})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))

	available, err := f.svc.Available(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "30.00", available.StringFixed(2))

	bal, err := f.store.Balance(ctx, ledger.Wallet(m.ID))
	require.NoError(t, err)
	assert.Equal(t, "100.00", bal.StringFixed(2))
}

func TestRequestRegistrationFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "254712345678", "")
	group := &models.Group{Name: "Umoja", RegistrationFee: decimal.NewFromInt(200)}
	require.NoError(t, f.client.DB().Create(group).Error)
	link := &models.GroupMember{GroupID: group.ID, MemberID: m.ID, Role: enums.MemberRoleMember}
	require.NoError(t, f.client.DB().Create(link).Error)

	transfer, err := f.svc.RequestRegistrationFee(ctx, RegistrationFeeInput{GroupID: group.ID, MemberID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.TransferKindRegistrationFee, transfer.Kind)
	assert.Equal(t, "200.00", transfer.Amount.StringFixed(2))
	require.NotNil(t, transfer.GroupID)
	assert.Equal(t, group.ID, *transfer.GroupID)
	assert.Equal(t, int64(1), f.count(t, &models.Task{}, "kind = ?", enums.TaskKindInitiateDeposit))

	require.NoError(t, f.client.DB().Model(link).Update("registration_fee_paid", true).Error)
	_, err = f.svc.RequestRegistrationFee(ctx, RegistrationFeeInput{GroupID: group.ID, MemberID: m.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.RequestRegistrationFee(ctx, RegistrationFeeInput{GroupID: group.ID, MemberID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestTransfer_MovesBetweenWallets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.member(t, "254711111111", "100")
	bob := f.member(t, "254722222222", "")

	transfer, err := f.svc.Transfer(ctx, TransferInput{FromMemberID: alice.ID, ToMemberID: bob.ID, Amount: decimal.NewFromInt(35)})
	require.NoError(t, err)
	assert.Equal(t, enums.TransferStatusCompleted, transfer.Status)
	require.NotNil(t, transfer.CompletedAt)

	aliceBal, err := f.store.Balance(ctx, ledger.Wallet(alice.ID))
	require.NoError(t, err)
	bobBal, err := f.store.Balance(ctx, ledger.Wallet(bob.ID))
	require.NoError(t, err)
	assert.Equal(t, "65.00", aliceBal.StringFixed(2))
	assert.Equal(t, "35.00", bobBal.StringFixed(2))
	assert.Equal(t, int64(2), f.count(t, &models.LedgerEntry{}, "transfer_id = ?", transfer.ID))
	assert.Equal(t, int64(1), f.count(t, &models.OutboxEvent{}, "event_type = ? AND aggregate_id = ?", enums.EventTransferCompleted, transfer.ID))

	_, err = f.svc.Transfer(ctx, TransferInput{FromMemberID: alice.ID, ToMemberID: bob.ID, Amount: decimal.NewFromInt(1000)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))

	_, err = f.svc.Transfer(ctx, TransferInput{FromMemberID: alice.ID, ToMemberID: alice.ID, Amount: decimal.NewFromInt(1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRecordLocal_RejectsExternalKinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "254712345678", "10")

	err := f.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		_, err := f.svc.RecordLocal(ctx, uow, LocalInput{
			Kind:   enums.TransferKindDeposit,
			Amount: decimal.NewFromInt(1),
			From:   ledger.Wallet(m.ID),
			To:     ledger.Platform(),
		})
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestRepository_TransitionsOnlyFromPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "254712345678", "")
	transfer, err := f.svc.RequestDeposit(ctx, DepositInput{MemberID: m.ID, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)

	attached, err := f.repo.AttachGatewayRef(ctx, transfer.ID, "ws_CO_1", f.now)
	require.NoError(t, err)
	assert.True(t, attached)
	attached, err = f.repo.AttachGatewayRef(ctx, transfer.ID, "ws_CO_2", f.now)
	require.NoError(t, err)
	assert.False(t, attached)

	locked, err := f.repo.FindPendingByCodeForUpdate(ctx, "ws_CO_1", enums.TransferKindDeposit)
	require.NoError(t, err)
	assert.Equal(t, transfer.ID, locked.ID)
	_, err = f.repo.FindPendingByCodeForUpdate(ctx, "ws_CO_1", enums.TransferKindWithdrawal)
	assert.True(t, db.IsNotFound(err))

	done, err := f.repo.MarkCompleted(ctx, transfer.ID, "NLJ7RT61SV", f.now)
	require.NoError(t, err)
	assert.True(t, done)
	done, err = f.repo.MarkFailed(ctx, transfer.ID, "late", f.now)
	require.NoError(t, err)
	assert.False(t, done)

	reloaded, err := f.repo.FindByID(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransferStatusCompleted, reloaded.Status)
	assert.Equal(t, "NLJ7RT61SV", reloaded.IdempotencyCode)
	require.NotNil(t, reloaded.GatewayRef)
	assert.Equal(t, "ws_CO_1", *reloaded.GatewayRef)
}

func TestRepository_ListStalePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "254712345678", "")

	old, err := f.svc.RequestDeposit(ctx, DepositInput{MemberID: m.ID, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	unsent, err := f.svc.RequestDeposit(ctx, DepositInput{MemberID: m.ID, Amount: decimal.NewFromInt(20)})
	require.NoError(t, err)
	_, err = f.repo.AttachGatewayRef(ctx, old.ID, "ws_CO_old", f.now)
	require.NoError(t, err)

	f.now = f.now.Add(10 * time.Minute)
	fresh, err := f.svc.RequestDeposit(ctx, DepositInput{MemberID: m.ID, Amount: decimal.NewFromInt(30)})
	require.NoError(t, err)
	_, err = f.repo.AttachGatewayRef(ctx, fresh.ID, "ws_CO_fresh", f.now)
	require.NoError(t, err)

	stale, err := f.repo.ListStalePending(ctx, f.now.Add(-5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
	assert.NotEqual(t, unsent.ID, stale[0].ID)

	attempts, err := f.repo.IncrementPollAttempts(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestHistory_PagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "254712345678", "")
	other := f.member(t, "254722000000", "")

	base := time.Date(2025, 1, 6, 6, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		memberID := m.ID
		kind := enums.TransferKindDeposit
		if i == 4 {
			kind = enums.TransferKindWithdrawal
		}
		transfer := &models.Transfer{
			RequestCode:     fmt.Sprintf("HIST-%d", i),
			IdempotencyCode: fmt.Sprintf("HIST-%d", i),
			Kind:            kind,
			Status:          enums.TransferStatusPending,
			Amount:          decimal.NewFromInt(int64(10 * (i + 1))),
			Origin:          "254712345678",
			Destination:     "wallet",
			MemberID:        &memberID,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, f.repo.Create(ctx, transfer))
		ids = append(ids, transfer.ID)
	}
	otherID := other.ID
	require.NoError(t, f.repo.Create(ctx, &models.Transfer{
		RequestCode:     "HIST-OTHER",
		IdempotencyCode: "HIST-OTHER",
		Kind:            enums.TransferKindDeposit,
		Status:          enums.TransferStatusPending,
		Amount:          decimal.NewFromInt(1),
		Origin:          "254722000000",
		Destination:     "wallet",
		MemberID:        &otherID,
		CreatedAt:       base,
	}))

	first, err := f.svc.History(ctx, m.ID, "", 2, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, ids[4], first.Items[0].ID)
	assert.Equal(t, ids[3], first.Items[1].ID)
	require.NotEmpty(t, first.Cursor)

	second, err := f.svc.History(ctx, m.ID, "", 2, first.Cursor)
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Equal(t, ids[2], second.Items[0].ID)
	assert.Equal(t, ids[1], second.Items[1].ID)

	last, err := f.svc.History(ctx, m.ID, "", 2, second.Cursor)
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	assert.Equal(t, ids[0], last.Items[0].ID)
	assert.Empty(t, last.Cursor)

	_, err = f.svc.History(ctx, m.ID, enums.TransferKindWithdrawal, 2, first.Cursor)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "cursor must not cross filters")

	withdrawals, err := f.svc.History(ctx, m.ID, enums.TransferKindWithdrawal, 0, "")
	require.NoError(t, err)
	require.Len(t, withdrawals.Items, 1)
	assert.Equal(t, ids[4], withdrawals.Items[0].ID)
}

func TestHistory_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.History(ctx, uuid.New(), "", 10, "not-a-cursor!")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.History(ctx, uuid.New(), enums.TransferKind("bogus"), 10, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.History(ctx, uuid.Nil, "", 10, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
