package controllers

import (
	"net/http"

	"github.com/angelmondragon/chama-backend/api/responses"
	"github.com/angelmondragon/chama-backend/api/validators"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

// DividendDistribute pays out the current cycle's dividend pool.
func DividendDistribute(svc DividendService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activityID, err := managerScope(r, acts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		round, err := svc.Distribute(r.Context(), activityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, roundResponseFromResult(round))
	}
}

func DividendDisbursements(svc DividendService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activityID, err := validators.ParseUUIDParam(r, "activityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cycle, err := validators.ParseQueryInt(r, "cycle", 1, 1, 10000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.Disbursements(r.Context(), activityID, cycle)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, disbursementResponses(rows))
	}
}
