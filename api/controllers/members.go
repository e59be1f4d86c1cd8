package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/chama-backend/api/middleware"
	"github.com/angelmondragon/chama-backend/api/responses"
	"github.com/angelmondragon/chama-backend/api/validators"
	"github.com/angelmondragon/chama-backend/internal/activities"
	pkgAuth "github.com/angelmondragon/chama-backend/pkg/auth"
	"github.com/angelmondragon/chama-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

const tokenHeader = "X-Chama-Token"

type registerMemberRequest struct {
	Phone    string `json:"phone" validate:"required,msisdn"`
	FullName string `json:"full_name" validate:"required,max=120"`
}

// MemberRegister creates a member with a wallet and returns an access token.
func MemberRegister(svc MemberService, cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member service unavailable"))
			return
		}

		var payload registerMemberRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		member, err := svc.RegisterMember(r.Context(), activities.RegisterMemberInput{
			Phone:    payload.Phone,
			FullName: validators.SanitizeString(payload.FullName, 120),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token, err := pkgAuth.MintAccessToken(cfg, time.Now().UTC(), pkgAuth.AccessTokenPayload{
			MemberID: member.ID,
			Phone:    member.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token"))
			return
		}

		w.Header().Set(tokenHeader, token)
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"member":       memberResponseFromModel(member),
			"access_token": token,
		})
	}
}

func currentMember(ctx context.Context) (uuid.UUID, error) {
	id := middleware.MemberIDFromContext(ctx)
	if id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "member context missing")
	}
	return id, nil
}
