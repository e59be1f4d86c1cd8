package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/chama-backend/api/responses"
	pkgAuth "github.com/angelmondragon/chama-backend/pkg/auth"
	"github.com/angelmondragon/chama-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

const bearerScheme = "bearer"

// Auth accepts only bearer member tokens. Group roles are not in the token;
// controllers check them against the membership table.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, r, logg, pkgerrors.New(pkgerrors.CodeUnauthorized, "bearer token required"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				unauthorized(w, r, logg, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := context.WithValue(WithMemberID(r.Context(), claims.MemberID), ctxPhone, claims.Phone)
			if logg != nil {
				ctx = logg.WithPhone(logg.WithMemberID(ctx, claims.MemberID.String()), claims.Phone)
			}
			recordMember(w, claims.MemberID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="chama"`)
	responses.WriteError(r.Context(), logg, w, err)
}
