package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/chama-backend/api/responses"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

const CallbackSecretHeader = "X-Callback-Secret"

// CallbackSecret rejects gateway callbacks that do not echo the shared secret.
// An empty secret disables the check.
func CallbackSecret(secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			provided := []byte(strings.TrimSpace(r.Header.Get(CallbackSecretHeader)))
			if subtle.ConstantTimeCompare(provided, expected) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid callback secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
