package loans_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/chama-backend/internal/activities/activitytest"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/internal/loans"
	"github.com/angelmondragon/chama-backend/internal/transfers"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

type harness struct {
	env   *activitytest.Env
	fx    *activitytest.Fixture
	loans *loans.Service
	repo  *loans.Repository
}

func newHarness(t *testing.T, spec activitytest.Spec, pool string) *harness {
	t.Helper()
	env := activitytest.New(t)
	spec.Type = enums.ActivityTypeTableBanking
	fx := env.Seed(spec)
	if pool != "" {
		env.Credit(ledger.ActivityAccount(fx.Activity.ID), pool)
	}
	repo := loans.NewRepository(env.Client.DB())
	svc, err := loans.NewService(loans.ServiceParams{
		Store:      env.Store,
		Repo:       repo,
		Activities: env.Repo,
		Transfers:  transfers.NewRepository(env.Client.DB()),
		Events:     env.Events,
		Location:   env.Loc,
		Logger:     env.Logger,
	})
	require.NoError(t, err)
	return &harness{env: env, fx: fx, loans: svc, repo: repo}
}

func (h *harness) totals(t *testing.T) *models.LoanManagement {
	t.Helper()
	totals, err := h.loans.Totals(context.Background(), h.fx.Activity.ID)
	require.NoError(t, err)
	return totals
}

func (h *harness) pool(t *testing.T) *models.DividendPool {
	t.Helper()
	pool, err := h.env.Repo.FindDividendPool(context.Background(), h.fx.Activity.ID, h.env.Reload(h.fx.Activity).CycleNumber)
	require.NoError(t, err)
	return pool
}

func assertLoanInvariant(t *testing.T, loan *models.SoftLoan) {
	t.Helper()
	assert.True(t, loan.StandingBalance.Add(loan.ExpectedInterest).Equal(loan.TotalRequired),
		"standing %s + interest %s != total %s", loan.StandingBalance, loan.ExpectedInterest, loan.TotalRequired)
	assert.False(t, loan.StandingBalance.IsNegative())
	assert.False(t, loan.ExpectedInterest.IsNegative())
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestInterest(t *testing.T) {
	assert.Equal(t, "50", loans.Interest(d("400"), d("12.5")).String())
	assert.Equal(t, "11", loans.Interest(d("210"), d("5")).String())
	assert.Equal(t, "10", loans.Interest(d("200"), d("5")).String())
	assert.Equal(t, "0", loans.Interest(d("100"), d("0")).String())
}

func TestRequest_WaitsForApprovalOnMandatoryDay(t *testing.T) {
	h := newHarness(t, activitytest.Spec{RequiresApproval: true, InterestRate: "12.5"}, "1000")
	ctx := context.Background()
	borrower := h.fx.Members[1]
	group := ledger.GroupAccount(h.fx.Group.ID)
	h.env.Credit(group, "250")

	loan, err := h.loans.Request(ctx, loans.RequestInput{ActivityID: h.fx.Activity.ID, MemberID: borrower.ID, Principal: d("400")})
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStateAwaitingApproval, loan.State)
	assert.Equal(t, "0.00", h.env.Balance(ledger.Wallet(borrower.ID)))
	assert.True(t, h.totals(t).TotalLoansTaken.IsZero())

	_, err = h.loans.Request(ctx, loans.RequestInput{ActivityID: h.fx.Activity.ID, MemberID: borrower.ID, Principal: d("50")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "one open loan per member")

	h.env.Now = h.env.Now.AddDate(0, 0, 2)
	approved, err := h.loans.Approve(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStateApproved, approved.State)
	require.NotNil(t, approved.ExpectedRepaymentDate)
	assert.True(t, time.Date(2025, 1, 15, 0, 0, 0, 0, h.env.Loc).Equal(*approved.ExpectedRepaymentDate))
	assert.Equal(t, "400.00", h.env.Balance(ledger.Wallet(borrower.ID)))
	assert.Equal(t, "600.00", h.env.Balance(ledger.ActivityAccount(h.fx.Activity.ID)))
	assert.Equal(t, "250.00", h.env.Balance(group), "loan principal comes from the activity pool only")

	totals := h.totals(t)
	assert.Equal(t, "400.00", totals.TotalLoansTaken.StringFixed(2))
	assert.Equal(t, "400.00", totals.UnpaidLoans.StringFixed(2))
	assert.Equal(t, "50.00", totals.UnpaidInterest.StringFixed(2))

	_, err = h.loans.Approve(ctx, loan.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, int64(1), h.env.Count(&models.OutboxEvent{}, "event_type = ?", enums.EventLoanApproved))
}

func TestRequest_AutoApprovesOffMandatoryDays(t *testing.T) {
	h := newHarness(t, activitytest.Spec{RequiresApproval: true, InterestRate: "10"}, "1000")
	h.env.Now = h.env.Now.AddDate(0, 0, 1)

	loan, err := h.loans.Request(context.Background(), loans.RequestInput{ActivityID: h.fx.Activity.ID, MemberID: h.fx.Members[0].ID, Principal: d("300")})
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStateApproved, loan.State)
	assert.Equal(t, "30.00", loan.ExpectedInterest.StringFixed(2))
	assert.Equal(t, "330.00", loan.TotalRequired.StringFixed(2))
	assert.Equal(t, "300.00", h.env.Balance(ledger.Wallet(h.fx.Members[0].ID)))
}

func TestRequest_NoApprovalNeeded(t *testing.T) {
	h := newHarness(t, activitytest.Spec{RequiresApproval: false}, "1000")
	loan, err := h.loans.Request(context.Background(), loans.RequestInput{ActivityID: h.fx.Activity.ID, MemberID: h.fx.Members[0].ID, Principal: d("100")})
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStateApproved, loan.State)
}

func TestRequest_InsufficientPoolRollsBack(t *testing.T) {
	h := newHarness(t, activitytest.Spec{}, "50")
	_, err := h.loans.Request(context.Background(), loans.RequestInput{ActivityID: h.fx.Activity.ID, MemberID: h.fx.Members[0].ID, Principal: d("100")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))
	assert.Equal(t, int64(0), h.env.Count(&models.SoftLoan{}, "activity_id = ?", h.fx.Activity.ID))
	assert.True(t, h.totals(t).UnpaidLoans.IsZero())
}

func TestReject(t *testing.T) {
	h := newHarness(t, activitytest.Spec{RequiresApproval: true}, "1000")
	ctx := context.Background()
	loan, err := h.loans.Request(ctx, loans.RequestInput{ActivityID: h.fx.Activity.ID, MemberID: h.fx.Members[0].ID, Principal: d("100")})
	require.NoError(t, err)

	rejected, err := h.loans.Reject(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStateRejected, rejected.State)
	_, err = h.loans.Approve(ctx, loan.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, "1000.00", h.env.Balance(ledger.ActivityAccount(h.fx.Activity.ID)))

	// a rejected loan does not block a new request
	_, err = h.loans.Request(ctx, loans.RequestInput{ActivityID: h.fx.Activity.ID, MemberID: h.fx.Members[0].ID, Principal: d("100")})
	assert.NoError(t, err)
}

func TestRepay_InterestFirstWaterfall(t *testing.T) {
	h := newHarness(t, activitytest.Spec{InterestRate: "12.5"}, "1000")
	ctx := context.Background()
	borrower := h.fx.Members[2]
	loan, err := h.loans.Request(ctx, loans.RequestInput{ActivityID: h.fx.Activity.ID, MemberID: borrower.ID, Principal: d("400")})
	require.NoError(t, err)
	require.Equal(t, "50.00", loan.ExpectedInterest.StringFixed(2))

	res, err := h.loans.Repay(ctx, loans.RepayInput{LoanID: loan.ID, MemberID: borrower.ID, Amount: d("300")})
	require.NoError(t, err)
	assert.Equal(t, "50.00", res.InterestPaid.StringFixed(2))
	assert.Equal(t, "250.00", res.PrincipalPaid.StringFixed(2))
	assert.True(t, res.Loan.ExpectedInterest.IsZero())
	assert.Equal(t, "150.00", res.Loan.StandingBalance.StringFixed(2))
	assert.Equal(t, "300.00", res.Loan.TotalRepaid.StringFixed(2))
	assert.Equal(t, enums.LoanStateApproved, res.Loan.State)
	assertLoanInvariant(t, res.Loan)

	stored, err := h.loans.Get(ctx, loan.ID)
	require.NoError(t, err)
	assertLoanInvariant(t, stored)
	assert.Equal(t, "150.00", stored.TotalRequired.StringFixed(2))

	totals := h.totals(t)
	assert.Equal(t, "150.00", totals.UnpaidLoans.StringFixed(2))
	assert.Equal(t, "0.00", totals.UnpaidInterest.StringFixed(2))
	assert.Equal(t, "250.00", totals.RepaidLoans.StringFixed(2))
	assert.Equal(t, "50.00", totals.RepaidInterest.StringFixed(2))
	assert.Equal(t, "50.00", h.pool(t).UnpaidDividends.StringFixed(2))
	assert.Equal(t, "100.00", h.env.Balance(ledger.Wallet(borrower.ID)))

	cleared, err := h.loans.Repay(ctx, loans.RepayInput{LoanID: loan.ID, MemberID: borrower.ID, Amount: d("100")})
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStateApproved, cleared.Loan.State)
	h.env.Credit(ledger.Wallet(borrower.ID), "50")
	cleared, err = h.loans.Repay(ctx, loans.RepayInput{LoanID: loan.ID, MemberID: borrower.ID, Amount: d("50")})
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStateCleared, cleared.Loan.State)
	assert.NotNil(t, cleared.Loan.ClearedAt)
	assertLoanInvariant(t, cleared.Loan)

	_, err = h.loans.Repay(ctx, loans.RepayInput{LoanID: loan.ID, MemberID: borrower.ID, Amount: d("1")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, "1050.00", h.env.Balance(ledger.ActivityAccount(h.fx.Activity.ID)))
}

func TestRepay_Rejections(t *testing.T) {
	h := newHarness(t, activitytest.Spec{InterestRate: "10"}, "1000")
	ctx := context.Background()
	loan, err := h.loans.Request(ctx, loans.RequestInput{ActivityID: h.fx.Activity.ID, MemberID: h.fx.Members[0].ID, Principal: d("100")})
	require.NoError(t, err)

	_, err = h.loans.Repay(ctx, loans.RepayInput{LoanID: loan.ID, MemberID: h.fx.Members[1].ID, Amount: d("10")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = h.loans.Repay(ctx, loans.RepayInput{LoanID: loan.ID, MemberID: h.fx.Members[0].ID, Amount: d("111")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = h.loans.Repay(ctx, loans.RepayInput{LoanID: loan.ID, MemberID: h.fx.Members[0].ID, Amount: d("0")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReageOverdue_PostsOnlyTheDelta(t *testing.T) {
	h := newHarness(t, activitytest.Spec{InterestRate: "5"}, "1000")
	ctx := context.Background()
	h.env.Now = h.env.Now.AddDate(0, 0, 1)
	loan, err := h.loans.Request(ctx, loans.RequestInput{ActivityID: h.fx.Activity.ID, MemberID: h.fx.Members[0].ID, Principal: d("200")})
	require.NoError(t, err)
	require.Equal(t, "210.00", loan.TotalRequired.StringFixed(2))

	// due on the 14th; nothing happens that day
	h.env.Now = time.Date(2025, 1, 14, 18, 0, 0, 0, h.env.Loc)
	n, err := h.loans.ReageOverdue(ctx, h.fx.Activity.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.env.Now = time.Date(2025, 1, 15, 9, 0, 0, 0, h.env.Loc)
	n, err = h.loans.ReageOverdue(ctx, h.fx.Activity.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reaged, err := h.loans.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStateOverdue, reaged.State)
	assert.Equal(t, "210.00", reaged.StandingBalance.StringFixed(2))
	assert.Equal(t, "11.00", reaged.ExpectedInterest.StringFixed(2))
	assert.Equal(t, "221.00", reaged.TotalRequired.StringFixed(2))
	assert.Equal(t, 1, reaged.MissedPayments)
	require.NotNil(t, reaged.ExpectedRepaymentDate)
	assert.True(t, time.Date(2025, 1, 21, 0, 0, 0, 0, h.env.Loc).Equal(*reaged.ExpectedRepaymentDate))
	assertLoanInvariant(t, reaged)

	totals := h.totals(t)
	assert.Equal(t, "200.00", totals.TotalLoansTaken.StringFixed(2))
	assert.Equal(t, "210.00", totals.UnpaidLoans.StringFixed(2))
	assert.Equal(t, "11.00", totals.UnpaidInterest.StringFixed(2))

	n, err = h.loans.ReageOverdue(ctx, h.fx.Activity.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "second run on the same day")
	assert.Equal(t, int64(1), h.env.Count(&models.OutboxEvent{}, "event_type = ?", enums.EventLoanReaged))

	// overdue loans stay repayable
	h.env.Credit(ledger.Wallet(h.fx.Members[0].ID), "21")
	res, err := h.loans.Repay(ctx, loans.RepayInput{LoanID: loan.ID, MemberID: h.fx.Members[0].ID, Amount: d("221")})
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStateCleared, res.Loan.State)
}

func TestLoansOnlyForTableBanking(t *testing.T) {
	env := activitytest.New(t)
	fx := env.Seed(activitytest.Spec{})
	svc, err := loans.NewService(loans.ServiceParams{
		Store:      env.Store,
		Repo:       loans.NewRepository(env.Client.DB()),
		Activities: env.Repo,
		Transfers:  transfers.NewRepository(env.Client.DB()),
		Events:     env.Events,
		Location:   env.Loc,
	})
	require.NoError(t, err)
	_, err = svc.Request(context.Background(), loans.RequestInput{ActivityID: fx.Activity.ID, MemberID: fx.Members[0].ID, Principal: d("10")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}
