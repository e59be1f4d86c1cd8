package controllers

import (
	"net/http"

	"github.com/angelmondragon/chama-backend/api/responses"
	"github.com/angelmondragon/chama-backend/api/validators"
	"github.com/angelmondragon/chama-backend/internal/activities"
	"github.com/angelmondragon/chama-backend/internal/transfers"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

type createGroupRequest struct {
	Name            string `json:"name" validate:"required,min=3,max=80"`
	RegistrationFee string `json:"registration_fee"`
}

type registrationFeeRequest struct {
	Nonce string `json:"nonce" validate:"omitempty,max=64"`
}

// GroupCreate creates a group managed by the caller.
func GroupCreate(svc GroupService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := currentMember(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createGroupRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fee, err := validators.ParseOptionalAmount(payload.RegistrationFee, "registration_fee")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		group, err := svc.CreateGroup(r.Context(), activities.CreateGroupInput{
			Name:            validators.SanitizeString(payload.Name, 80),
			RegistrationFee: fee,
			FounderID:       memberID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, groupResponseFromModel(group))
	}
}

func GroupJoin(svc GroupService, logg *logger.Logger) http.HandlerFunc {
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

		membership, err := svc.JoinGroup(r.Context(), groupID, memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, groupMemberResponseFromModel(membership))
	}
}

// GroupRegistrationFee starts the STK push for the caller's group registration fee.
func GroupRegistrationFee(svc WalletService, logg *logger.Logger) http.HandlerFunc {
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

		var payload registrationFeeRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		transfer, err := svc.RequestRegistrationFee(r.Context(), transfers.RegistrationFeeInput{
			GroupID:  groupID,
			MemberID: memberID,
			Nonce:    requestNonce(r, payload.Nonce),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, transferResponseFromModel(transfer))
	}
}
