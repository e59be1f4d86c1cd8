package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/chama-backend/api/responses"
	"github.com/angelmondragon/chama-backend/api/validators"
	"github.com/angelmondragon/chama-backend/internal/fines"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

type issueFineRequest struct {
	MemberID string `json:"member_id" validate:"required,uuid"`
	Amount   string `json:"amount" validate:"required,money"`
	Reason   string `json:"reason" validate:"required,max=200"`
}

// FineIssue lets a group manager fine an enrolled member.
func FineIssue(svc FineService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activityID, err := managerScope(r, acts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload issueFineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		memberID, err := uuid.Parse(strings.TrimSpace(payload.MemberID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid member_id"))
			return
		}
		amount, err := validators.ParseAmount(payload.Amount, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fine, err := svc.Issue(r.Context(), fines.IssueInput{
			ActivityID: activityID,
			MemberID:   memberID,
			Amount:     amount,
			Reason:     validators.SanitizeString(payload.Reason, 200),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, fineResponseFromModel(fine, acts.Location()))
	}
}

// FineList lists an activity's fines, optionally filtered by ?status=.
func FineList(svc FineService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activityID, err := validators.ParseUUIDParam(r, "activityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := enums.FineStatus(strings.TrimSpace(r.URL.Query().Get("status")))
		if status != "" && !status.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid fine status").WithDetails(map[string]any{"field": "status"}))
			return
		}

		rows, err := svc.List(r.Context(), activityID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loc := acts.Location()
		out := make([]fineResponse, 0, len(rows))
		for i := range rows {
			out = append(out, fineResponseFromModel(&rows[i], loc))
		}
		responses.WriteSuccess(w, out)
	}
}

// FinePay settles one of the caller's fines from their wallet.
func FinePay(svc FineService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := currentMember(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fineID, err := validators.ParseUUIDParam(r, "fineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fine, err := svc.Pay(r.Context(), fineID, memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, fineResponseFromModel(fine, acts.Location()))
	}
}
