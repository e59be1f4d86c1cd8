package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/chama-backend/internal/dividends"
	"github.com/angelmondragon/chama-backend/internal/rotation"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

// maxRotationPayouts bounds how many overdue slots one run pays per activity.
const maxRotationPayouts = 16

type activityLister interface {
	ListActive(ctx context.Context) ([]models.Activity, error)
}

type fineIssuer interface {
	IssueMissedContributionFines(ctx context.Context, activityID uuid.UUID) (int, error)
}

type rotationDisburser interface {
	Disburse(ctx context.Context, activityID uuid.UUID) (*rotation.Payout, error)
}

type loanReager interface {
	ReageOverdue(ctx context.Context, activityID uuid.UUID) (int, error)
}

type dividendDistributor interface {
	Due(activity *models.Activity, now time.Time) bool
	Distribute(ctx context.Context, activityID uuid.UUID) (*dividends.Round, error)
}

type ActivityCycleJobParams struct {
	Logger     *logger.Logger
	Activities activityLister
	Fines      fineIssuer
	Rotation   rotationDisburser
	Loans      loanReager
	Dividends  dividendDistributor
	Now        func() time.Time
}

// NewActivityCycleJob advances every active activity through its scheduled
// steps: fines, rotation payouts, loan re-aging, then dividends.
func NewActivityCycleJob(params ActivityCycleJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Activities == nil:
		return nil, fmt.Errorf("activity lister required")
	case params.Fines == nil || params.Rotation == nil || params.Loans == nil || params.Dividends == nil:
		return nil, fmt.Errorf("fines, rotation, loans and dividends services required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &activityCycleJob{
		logg:       params.Logger,
		activities: params.Activities,
		fines:      params.Fines,
		rotation:   params.Rotation,
		loans:      params.Loans,
		dividends:  params.Dividends,
		now:        now,
	}, nil
}

type activityCycleJob struct {
	logg       *logger.Logger
	activities activityLister
	fines      fineIssuer
	rotation   rotationDisburser
	loans      loanReager
	dividends  dividendDistributor
	now        func() time.Time
}

func (j *activityCycleJob) Name() string { return "activity-cycle" }

// Run processes each activity independently; one failing activity does not
// stop the others.
func (j *activityCycleJob) Run(ctx context.Context) error {
	activities, err := j.activities.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list activities: %w", err)
	}
	var errs error
	for i := range activities {
		activity := &activities[i]
		actCtx := j.logg.WithActivityID(ctx, activity.ID.String())
		if err := j.runActivity(actCtx, activity); err != nil {
			j.logg.Error(actCtx, "activity cycle failed", err)
			errs = multierr.Append(errs, fmt.Errorf("activity %s: %w", activity.ID, err))
		}
	}
	return errs
}

func (j *activityCycleJob) runActivity(ctx context.Context, activity *models.Activity) error {
	fined, err := j.fines.IssueMissedContributionFines(ctx, activity.ID)
	if err != nil {
		return fmt.Errorf("fines: %w", err)
	}

	payouts := 0
	if activity.Type == enums.ActivityTypeMerryGoRound {
		payouts, err = j.payRotation(ctx, activity.ID)
		if err != nil {
			return fmt.Errorf("rotation: %w", err)
		}
	}

	reaged := 0
	if activity.Type == enums.ActivityTypeTableBanking {
		reaged, err = j.loans.ReageOverdue(ctx, activity.ID)
		if err != nil {
			return fmt.Errorf("loans: %w", err)
		}
	}

	distributed := false
	if j.dividends.Due(activity, j.now()) {
		if _, err := j.dividends.Distribute(ctx, activity.ID); err != nil {
			return fmt.Errorf("dividends: %w", err)
		}
		distributed = true
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"fines_issued":     fined,
		"rotation_payouts": payouts,
		"loans_reaged":     reaged,
		"dividends_paid":   distributed,
	}), "activity cycle complete")
	return nil
}

// payRotation pays due slots until nothing more is payable.
func (j *activityCycleJob) payRotation(ctx context.Context, activityID uuid.UUID) (int, error) {
	paid := 0
	for paid < maxRotationPayouts {
		payout, err := j.rotation.Disburse(ctx, activityID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return paid, nil
			}
			return paid, err
		}
		paid++
		if !payout.Slot.Fulfilled {
			return paid, nil
		}
	}
	return paid, nil
}
