package activities_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/chama-backend/internal/activities"
	"github.com/angelmondragon/chama-backend/internal/activities/activitytest"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

func TestRegisterMember_NormalisesPhoneAndOpensWallet(t *testing.T) {
	env := activitytest.New(t)
	ctx := context.Background()

	member, err := env.Activities.RegisterMember(ctx, activities.RegisterMemberInput{Phone: "0712 345 678", FullName: " Achieng "})
	require.NoError(t, err)
	assert.Equal(t, "254712345678", member.Phone)
	assert.Equal(t, "Achieng", member.FullName)
	assert.Equal(t, "0.00", env.Balance(ledger.Wallet(member.ID)))

	_, err = env.Activities.RegisterMember(ctx, activities.RegisterMemberInput{Phone: "+254712345678", FullName: "Dup"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = env.Activities.RegisterMember(ctx, activities.RegisterMemberInput{Phone: "12345", FullName: "Bad"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSeed_OpensAccountsAndCycleOne(t *testing.T) {
	env := activitytest.New(t)
	fx := env.Seed(activitytest.Spec{Shares: []int{2, 1}})

	assert.Equal(t, 1, fx.Activity.CycleNumber)
	assert.Equal(t, "0.00", env.Balance(ledger.ActivityAccount(fx.Activity.ID)))
	assert.Equal(t, "0.00", env.Balance(ledger.GroupAccount(fx.Group.ID)))
	assert.Equal(t, int64(1), env.Count(&models.DividendPool{}, "activity_id = ? AND cycle_number = 1", fx.Activity.ID))
	assert.Equal(t, int64(1), env.Count(&models.LoanManagement{}, "activity_id = ? AND cycle_number = 1", fx.Activity.ID))

	members, err := env.Repo.ListActiveMembers(context.Background(), fx.Activity.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	// opening the cycle again leaves the rows untouched
	require.NoError(t, env.Repo.OpenCycle(context.Background(), fx.Activity.ID, 1))
	assert.Equal(t, int64(1), env.Count(&models.DividendPool{}, "activity_id = ?", fx.Activity.ID))
}

func TestCreateActivity_RequiresManager(t *testing.T) {
	env := activitytest.New(t)
	ctx := context.Background()
	fx := env.Seed(activitytest.Spec{})

	_, err := env.Activities.CreateActivity(ctx, activities.CreateActivityInput{
		GroupID:               fx.Group.ID,
		ActorID:               fx.Members[1].ID,
		Name:                  "Savings",
		Type:                  enums.ActivityTypeFixedSavings,
		Interval:              enums.IntervalMonthly,
		ContributionAmount:    decimal.NewFromInt(500),
		FirstContributionDate: env.Now,
		DividendMode:          enums.DividendModeDividendsOnly,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	assert.NoError(t, env.Activities.RequireManager(ctx, fx.Activity.ID, fx.Manager().ID))
	assert.True(t, pkgerrors.IsCode(env.Activities.RequireManager(ctx, fx.Activity.ID, fx.Members[2].ID), pkgerrors.CodeForbidden))
}

func TestCreateActivity_Validation(t *testing.T) {
	env := activitytest.New(t)
	fx := env.Seed(activitytest.Spec{})
	base := activities.CreateActivityInput{
		GroupID:               fx.Group.ID,
		ActorID:               fx.Manager().ID,
		Name:                  "Table",
		Type:                  enums.ActivityTypeTableBanking,
		Interval:              enums.IntervalCustom,
		IntervalDays:          0,
		ContributionAmount:    decimal.NewFromInt(50),
		FirstContributionDate: env.Now,
		DividendMode:          enums.DividendModeDividendsAndPrincipal,
	}
	_, err := env.Activities.CreateActivity(context.Background(), base)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	base.IntervalDays = 14
	activity, err := env.Activities.CreateActivity(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, 14, activity.IntervalDays)
}

func TestEnroll_RequiresPaidRegistration(t *testing.T) {
	env := activitytest.New(t)
	ctx := context.Background()
	fx := env.Seed(activitytest.Spec{})

	paying, err := env.Activities.CreateGroup(ctx, activities.CreateGroupInput{
		Name:            "Harambee",
		RegistrationFee: decimal.NewFromInt(200),
		FounderID:       fx.Manager().ID,
	})
	require.NoError(t, err)
	newcomer := env.Member("")
	link, err := env.Activities.JoinGroup(ctx, paying.ID, newcomer.ID)
	require.NoError(t, err)
	assert.False(t, link.RegistrationFeePaid)

	activity, err := env.Activities.CreateActivity(ctx, activities.CreateActivityInput{
		GroupID:               paying.ID,
		ActorID:               fx.Manager().ID,
		Name:                  "MGR",
		Type:                  enums.ActivityTypeMerryGoRound,
		Interval:              enums.IntervalWeekly,
		ContributionAmount:    decimal.NewFromInt(100),
		FirstContributionDate: env.Now,
		DividendMode:          enums.DividendModeDividendsOnly,
	})
	require.NoError(t, err)

	_, err = env.Activities.Enroll(ctx, activities.EnrollInput{ActivityID: activity.ID, MemberID: newcomer.ID, Shares: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	dir := activities.NewDirectory(env.Repo)
	require.NoError(t, dir.MarkRegistrationFeePaid(ctx, env.Client.DB(), paying.ID, newcomer.ID))
	_, err = env.Activities.Enroll(ctx, activities.EnrollInput{ActivityID: activity.ID, MemberID: newcomer.ID, Shares: 1})
	require.NoError(t, err)

	_, err = env.Activities.Enroll(ctx, activities.EnrollInput{ActivityID: activity.ID, MemberID: newcomer.ID, Shares: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = env.Activities.JoinGroup(ctx, paying.ID, newcomer.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}
