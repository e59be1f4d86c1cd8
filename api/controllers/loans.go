package controllers

import (
	"net/http"

	"github.com/angelmondragon/chama-backend/api/responses"
	"github.com/angelmondragon/chama-backend/api/validators"
	"github.com/angelmondragon/chama-backend/internal/loans"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

type loanRequest struct {
	Principal string `json:"principal" validate:"required,money"`
}

type repayRequest struct {
	Amount string `json:"amount" validate:"required,money"`
}

// LoanRequest asks for a soft loan from a table banking activity.
func LoanRequest(svc LoanService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
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
		var payload loanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		principal, err := validators.ParseAmount(payload.Principal, "principal")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loan, err := svc.Request(r.Context(), loans.RequestInput{
			ActivityID: activityID,
			MemberID:   memberID,
			Principal:  principal,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, loanResponseFromModel(loan, acts.Location()))
	}
}

// LoanList returns the activity's loans and the current cycle totals.
func LoanList(svc LoanService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activityID, err := validators.ParseUUIDParam(r, "activityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), activityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		totals, err := svc.Totals(r.Context(), activityID)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loc := acts.Location()
		out := make([]loanResponse, 0, len(rows))
		for i := range rows {
			out = append(out, loanResponseFromModel(&rows[i], loc))
		}
		responses.WriteSuccess(w, map[string]any{
			"loans":  out,
			"totals": loanTotalsResponseFromModel(totals),
		})
	}
}

type loanDecision func(*http.Request, LoanService, *models.SoftLoan) (*models.SoftLoan, error)

// loanDecisionHandler loads the loan, checks the caller manages its activity and
// applies the decision.
func loanDecisionHandler(svc LoanService, acts ActivityService, logg *logger.Logger, decide loanDecision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := currentMember(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loanID, err := validators.ParseUUIDParam(r, "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loan, err := svc.Get(r.Context(), loanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := acts.RequireManager(r.Context(), loan.ActivityID, memberID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := decide(r, svc, loan)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loanResponseFromModel(updated, acts.Location()))
	}
}

func LoanApprove(svc LoanService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
	return loanDecisionHandler(svc, acts, logg, func(r *http.Request, svc LoanService, loan *models.SoftLoan) (*models.SoftLoan, error) {
		return svc.Approve(r.Context(), loan.ID)
	})
}

func LoanReject(svc LoanService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
	return loanDecisionHandler(svc, acts, logg, func(r *http.Request, svc LoanService, loan *models.SoftLoan) (*models.SoftLoan, error) {
		return svc.Reject(r.Context(), loan.ID)
	})
}

// LoanRepay applies a repayment from the caller's wallet, interest first.
func LoanRepay(svc LoanService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := currentMember(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loanID, err := validators.ParseUUIDParam(r, "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload repayRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseAmount(payload.Amount, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		repayment, err := svc.Repay(r.Context(), loans.RepayInput{
			LoanID:   loanID,
			MemberID: memberID,
			Amount:   amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, repaymentResponseFromResult(repayment, acts.Location()))
	}
}
