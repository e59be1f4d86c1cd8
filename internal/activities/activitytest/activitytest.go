// Package activitytest seeds members, groups and activities for engine tests.
package activitytest

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/chama-backend/internal/activities"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/db/dbtest"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	"github.com/angelmondragon/chama-backend/pkg/logger"
	"github.com/angelmondragon/chama-backend/pkg/outbox"
)

// Env is a migrated in-memory database with a mutable clock.
type Env struct {
	t          testing.TB
	Client     *db.Client
	Store      *ledger.Store
	Repo       *activities.Repository
	Activities *activities.Service
	Events     *outbox.Service
	Logger     *logger.Logger
	Loc        *time.Location
	Now        time.Time
	phones     int
}

// New starts the clock at Monday 2025-01-06 09:00 EAT.
func New(t testing.TB) *Env {
	t.Helper()
	client := dbtest.Open(t)
	e := &Env{
		t:      t,
		Client: client,
		Loc:    clock.EAT(),
		Now:    time.Date(2025, 1, 6, 9, 0, 0, 0, clock.EAT()),
		Logger: logger.New(logger.Options{ServiceName: "engine-test", Output: io.Discard}),
	}
	store, err := ledger.NewStore(client, ledger.NewRepository(client.DB()), e.Clock())
	require.NoError(t, err)
	require.NoError(t, store.EnsurePlatformAccount(context.Background()))
	e.Store = store
	e.Repo = activities.NewRepository(client.DB())
	e.Activities, err = activities.NewService(store, e.Repo, e.Loc)
	require.NoError(t, err)
	e.Events = outbox.NewService(outbox.NewRepository(client.DB()), nil)
	return e
}

// Clock reads e.Now on every call so tests can move time.
func (e *Env) Clock() clock.Clock {
	return clock.Func(func() time.Time { return e.Now })
}

// Member registers a member with a wallet holding balance.
func (e *Env) Member(balance string) *models.Member {
	e.t.Helper()
	e.phones++
	member, err := e.Activities.RegisterMember(context.Background(), activities.RegisterMemberInput{
		Phone:    fmt.Sprintf("07%08d", e.phones),
		FullName: fmt.Sprintf("Member %d", e.phones),
	})
	require.NoError(e.t, err)
	if balance != "" {
		e.Credit(ledger.Wallet(member.ID), balance)
	}
	return member
}

// Credit books an external credit to ref.
func (e *Env) Credit(ref ledger.AccountRef, amount string) {
	e.t.Helper()
	ctx := context.Background()
	require.NoError(e.t, e.Store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		_, err := uow.CreditExternal(ctx, ref, decimal.RequireFromString(amount), "seed", nil)
		return err
	}))
}

func (e *Env) Balance(ref ledger.AccountRef) string {
	e.t.Helper()
	bal, err := e.Store.Balance(context.Background(), ref)
	require.NoError(e.t, err)
	return bal.StringFixed(2)
}

// Spec configures a seeded activity. Zero values fall back to a weekly
// merry-go-round of 100 per seat starting today.
type Spec struct {
	Type             enums.ActivityType
	Interval         enums.ContributionInterval
	IntervalDays     int
	Contribution     string
	InterestRate     string
	RequiresApproval bool
	LateFine         string
	DividendMode     enums.DividendMode
	DividendDate     *time.Time
	First            time.Time
	// Shares lists one entry per member; Balances optionally seeds their wallets.
	Shares   []int
	Balances []string
}

// Fixture is a seeded group and activity. Members[0] is the group manager.
type Fixture struct {
	Group    *models.Group
	Activity *models.Activity
	Members  []*models.Member
}

func (f *Fixture) Manager() *models.Member {
	return f.Members[0]
}

func (f *Fixture) MemberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(f.Members))
	for i, m := range f.Members {
		ids[i] = m.ID
	}
	return ids
}

// Seed creates a group without registration fee, an activity and enrolls members.
func (e *Env) Seed(spec Spec) *Fixture {
	e.t.Helper()
	ctx := context.Background()
	if spec.Type == "" {
		spec.Type = enums.ActivityTypeMerryGoRound
	}
	if spec.Interval == "" {
		spec.Interval = enums.IntervalWeekly
	}
	if spec.Contribution == "" {
		spec.Contribution = "100"
	}
	if spec.InterestRate == "" {
		spec.InterestRate = "10"
	}
	if spec.LateFine == "" {
		spec.LateFine = "0"
	}
	if spec.DividendMode == "" {
		spec.DividendMode = enums.DividendModeDividendsOnly
	}
	if spec.First.IsZero() {
		spec.First = e.Now
	}
	if len(spec.Shares) == 0 {
		spec.Shares = []int{1, 1, 1}
	}

	fx := &Fixture{}
	for i := range spec.Shares {
		balance := ""
		if i < len(spec.Balances) {
			balance = spec.Balances[i]
		}
		fx.Members = append(fx.Members, e.Member(balance))
	}
	group, err := e.Activities.CreateGroup(ctx, activities.CreateGroupInput{
		Name:            "Umoja",
		RegistrationFee: decimal.Zero,
		FounderID:       fx.Members[0].ID,
	})
	require.NoError(e.t, err)
	fx.Group = group
	for _, m := range fx.Members[1:] {
		_, err := e.Activities.JoinGroup(ctx, group.ID, m.ID)
		require.NoError(e.t, err)
	}

	activity, err := e.Activities.CreateActivity(ctx, activities.CreateActivityInput{
		GroupID:               group.ID,
		ActorID:               fx.Members[0].ID,
		Name:                  "Activity",
		Type:                  spec.Type,
		Interval:              spec.Interval,
		IntervalDays:          spec.IntervalDays,
		ContributionAmount:    decimal.RequireFromString(spec.Contribution),
		FirstContributionDate: spec.First,
		LoanInterestRate:      decimal.RequireFromString(spec.InterestRate),
		RequiresApproval:      spec.RequiresApproval,
		LateFine:              decimal.RequireFromString(spec.LateFine),
		DividendMode:          spec.DividendMode,
		DividendDate:          spec.DividendDate,
	})
	require.NoError(e.t, err)
	fx.Activity = activity
	for i, m := range fx.Members {
		_, err := e.Activities.Enroll(ctx, activities.EnrollInput{ActivityID: activity.ID, MemberID: m.ID, Shares: spec.Shares[i]})
		require.NoError(e.t, err)
	}
	return fx
}

// Reload reads the activity back from the database.
func (e *Env) Reload(activity *models.Activity) *models.Activity {
	e.t.Helper()
	fresh, err := e.Repo.FindActivity(context.Background(), activity.ID)
	require.NoError(e.t, err)
	return fresh
}

// Count counts rows of model matching query.
func (e *Env) Count(model any, query string, args ...any) int64 {
	e.t.Helper()
	var n int64
	require.NoError(e.t, e.Client.DB().Model(model).Where(query, args...).Count(&n).Error)
	return n
}
