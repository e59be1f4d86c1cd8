package reconciler

import (
	"context"
	"strconv"

	"github.com/angelmondragon/chama-backend/internal/gateway"
)

type replayGuard interface {
	Claim(ctx context.Context, consumer, key string) (bool, error)
	Release(ctx context.Context, consumer, key string) error
}

// CallbackHandler fronts Reconcile with a Redis replay guard. The guard only
// short-circuits known replays; the pending status check stays authoritative.
type CallbackHandler struct {
	reconciler *Reconciler
	guard      replayGuard
	consumer   string
}

// NewCallbackHandler builds a guarded handler. A nil guard reconciles every delivery.
func NewCallbackHandler(reconciler *Reconciler, guard replayGuard, consumer string) *CallbackHandler {
	return &CallbackHandler{reconciler: reconciler, guard: guard, consumer: consumer}
}

func (h *CallbackHandler) Handle(ctx context.Context, result gateway.Result) (Outcome, error) {
	key := result.Code + ":" + strconv.Itoa(result.ResultCode)
	if h.guard != nil && result.Code != "" {
		first, err := h.guard.Claim(ctx, h.consumer, key)
		if err != nil {
			h.reconciler.logg.Warn(h.reconciler.logg.WithField(ctx, "error", err.Error()), "callback replay guard unavailable")
		} else if !first {
			h.reconciler.metrics.IncReconciled(result.Kind.String(), string(OutcomeDuplicate))
			return OutcomeDuplicate, nil
		}
	}

	outcome, err := h.reconciler.Reconcile(ctx, result)
	if err != nil && h.guard != nil && result.Code != "" {
		if delErr := h.guard.Release(ctx, h.consumer, key); delErr != nil {
			h.reconciler.logg.Warn(h.reconciler.logg.WithField(ctx, "error", delErr.Error()), "failed to release callback replay guard")
		}
	}
	return outcome, err
}
