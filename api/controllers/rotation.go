package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/chama-backend/api/responses"
	"github.com/angelmondragon/chama-backend/api/validators"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

// managerScope resolves the caller and the {activityId} path parameter and fails
// unless the caller manages the activity's group.
func managerScope(r *http.Request, acts ActivityService) (uuid.UUID, error) {
	memberID, err := currentMember(r.Context())
	if err != nil {
		return uuid.Nil, err
	}
	activityID, err := validators.ParseUUIDParam(r, "activityId")
	if err != nil {
		return uuid.Nil, err
	}
	if err := acts.RequireManager(r.Context(), activityID, memberID); err != nil {
		return uuid.Nil, err
	}
	return activityID, nil
}

func RotationSlots(svc RotationService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activityID, err := validators.ParseUUIDParam(r, "activityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		slots, err := svc.Slots(r.Context(), activityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, slotResponses(slots, acts.Location()))
	}
}

// RotationGenerate draws the payout order of the current cycle.
func RotationGenerate(svc RotationService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activityID, err := managerScope(r, acts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		slots, err := svc.GenerateOrder(r.Context(), activityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, slotResponses(slots, acts.Location()))
	}
}

type swapRequest struct {
	OrderA int `json:"order_a" validate:"required,min=1"`
	OrderB int `json:"order_b" validate:"required,min=1"`
}

func RotationSwap(svc RotationService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activityID, err := managerScope(r, acts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload swapRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		slots, err := svc.Swap(r.Context(), activityID, payload.OrderA, payload.OrderB)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, slotResponses(slots, acts.Location()))
	}
}

// RotationDisburse pays the current slot's recipient.
func RotationDisburse(svc RotationService, acts ActivityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activityID, err := managerScope(r, acts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.Disburse(r.Context(), activityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payoutResponseFromResult(payout, acts.Location()))
	}
}
