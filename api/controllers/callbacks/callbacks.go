package callbacks

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/chama-backend/api/responses"
	"github.com/angelmondragon/chama-backend/internal/gateway"
	"github.com/angelmondragon/chama-backend/internal/reconciler"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
)

const maxPayloadBytes = 64 << 10

type Handler interface {
	Handle(ctx context.Context, result gateway.Result) (reconciler.Outcome, error)
}

type parseFunc func(r *http.Request, payload []byte) (gateway.Result, error)

// STK handles STK push results. The ?kind= query set when the push was
// initiated tells deposits from registration fees.
func STK(h Handler, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return handle(h, logg, func(r *http.Request, payload []byte) (gateway.Result, error) {
		kind := enums.TransferKindDeposit
		if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
			parsed, err := enums.ParseTransferKind(raw)
			if err != nil || (parsed != enums.TransferKindDeposit && parsed != enums.TransferKindRegistrationFee) {
				return gateway.Result{}, pkgerrors.New(pkgerrors.CodeValidation, "unsupported stk callback kind").
					WithDetails(map[string]any{"kind": raw})
			}
			kind = parsed
		}
		return gateway.ParseSTKCallback(payload, kind, loc)
	})
}

// B2CResult handles withdrawal results and queue timeouts; both share a payload.
func B2CResult(h Handler, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return handle(h, logg, func(_ *http.Request, payload []byte) (gateway.Result, error) {
		return gateway.ParseB2CResult(payload, loc)
	})
}

func handle(h Handler, logg *logger.Logger, parse parseFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "callback handler unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		result, err := parse(r, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"transfer_kind": result.Kind.String(),
				"request_code":  result.Code,
				"result_code":   result.ResultCode,
			})
		}

		outcome, err := h.Handle(ctx, result)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithField(ctx, "outcome", string(outcome))
			if outcome == reconciler.OutcomeMismatch {
				logg.Warn(ctx, "gateway callback disagrees with pending transfer")
			} else {
				logg.Info(ctx, "gateway callback processed")
			}
		}
		responses.WriteSuccess(w, map[string]any{
			"ResultCode": 0,
			"ResultDesc": "Accepted",
			"outcome":    outcome,
		})
	}
}
