package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/chama-backend/api/responses"
	"github.com/angelmondragon/chama-backend/api/validators"
	"github.com/angelmondragon/chama-backend/internal/activities"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

type createActivityRequest struct {
	Name                  string  `json:"name" validate:"required,min=3,max=80"`
	Type                  string  `json:"type" validate:"required"`
	Interval              string  `json:"contribution_interval" validate:"required"`
	IntervalDays          int     `json:"interval_days" validate:"omitempty,min=1,max=366"`
	ContributionAmount    string  `json:"contribution_amount" validate:"required,money"`
	FirstContributionDate string  `json:"first_contribution_date" validate:"required,ymd"`
	LoanInterestRate      string  `json:"loan_interest_rate"`
	RequiresApproval      bool    `json:"requires_approval"`
	LateFine              string  `json:"late_fine"`
	DividendMode          string  `json:"dividend_mode"`
	DividendDate          *string `json:"dividend_date"`
}

func (req createActivityRequest) toInput(loc *time.Location) (activities.CreateActivityInput, error) {
	activityType, err := enums.ParseActivityType(strings.TrimSpace(req.Type))
	if err != nil {
		return activities.CreateActivityInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid activity type")
	}
	interval, err := enums.ParseContributionInterval(strings.TrimSpace(req.Interval))
	if err != nil {
		return activities.CreateActivityInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid contribution interval")
	}
	amount, err := validators.ParseAmount(req.ContributionAmount, "contribution_amount")
	if err != nil {
		return activities.CreateActivityInput{}, err
	}
	first, err := parseCivilDate(req.FirstContributionDate, "first_contribution_date", loc)
	if err != nil {
		return activities.CreateActivityInput{}, err
	}
	rate := decimal.Zero
	if raw := strings.TrimSpace(req.LoanInterestRate); raw != "" {
		if rate, err = decimal.NewFromString(raw); err != nil || rate.IsNegative() {
			return activities.CreateActivityInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid loan_interest_rate")
		}
	}
	lateFine, err := validators.ParseOptionalAmount(req.LateFine, "late_fine")
	if err != nil {
		return activities.CreateActivityInput{}, err
	}
	mode := enums.DividendModeDividendsOnly
	if raw := strings.TrimSpace(req.DividendMode); raw != "" {
		if mode, err = enums.ParseDividendMode(raw); err != nil {
			return activities.CreateActivityInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid dividend_mode")
		}
	}

	input := activities.CreateActivityInput{
		Name:                  validators.SanitizeString(req.Name, 80),
		Type:                  activityType,
		Interval:              interval,
		IntervalDays:          req.IntervalDays,
		ContributionAmount:    amount,
		FirstContributionDate: first,
		LoanInterestRate:      rate,
		RequiresApproval:      req.RequiresApproval,
		LateFine:              lateFine,
		DividendMode:          mode,
	}
	if req.DividendDate != nil && strings.TrimSpace(*req.DividendDate) != "" {
		d, err := parseCivilDate(*req.DividendDate, "dividend_date", loc)
		if err != nil {
			return activities.CreateActivityInput{}, err
		}
		input.DividendDate = &d
	}
	return input, nil
}

func parseCivilDate(raw, field string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "dates use YYYY-MM-DD").WithDetails(map[string]any{"field": field})
	}
	return t, nil
}

// ActivityCreate adds an activity to a group. Only the group manager may do this.
func ActivityCreate(svc ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := currentMember(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groupID, err := validators.ParseUUIDParam(r, "groupId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createActivityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(svc.Location())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.GroupID = groupID
		input.ActorID = memberID

		activity, err := svc.CreateActivity(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, activityResponseFromModel(activity, svc.Location()))
	}
}

func ActivityDetail(svc ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activityID, err := validators.ParseUUIDParam(r, "activityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		activity, err := svc.Get(r.Context(), activityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, activityResponseFromModel(activity, svc.Location()))
	}
}

type enrollRequest struct {
	Shares int `json:"shares" validate:"omitempty,min=1,max=100"`
}

// ActivityEnroll enrols the caller in an activity with the requested shares.
func ActivityEnroll(svc ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := currentMember(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		activityID, err := validators.ParseUUIDParam(r, "activityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload enrollRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		if payload.Shares == 0 {
			payload.Shares = 1
		}

		enrolment, err := svc.Enroll(r.Context(), activities.EnrollInput{
			ActivityID: activityID,
			MemberID:   memberID,
			Shares:     payload.Shares,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, enrolmentResponseFromModel(enrolment))
	}
}

type contributeRequest struct {
	Amount string `json:"amount" validate:"required,money"`
}

// ActivityContribute moves a contribution from the caller's wallet into the activity.
func ActivityContribute(svc ContributionService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := currentMember(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		activityID, err := validators.ParseUUIDParam(r, "activityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload contributeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseAmount(payload.Amount, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contribution, err := svc.Contribute(r.Context(), activityID, memberID, amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, contributionResponseFromModel(contribution, acts.Location()))
	}
}
