package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/chama-backend/internal/gateway"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

const (
	defaultGrace          = 5 * time.Minute
	defaultSweepBatch     = 100
	defaultMaxPollAttempt = 3
)

type SweepParams struct {
	Reconciler      *Reconciler
	Client          gateway.Client
	Grace           time.Duration
	BatchSize       int
	MaxPollAttempts int
}

// SweepResult counts what one sweep pass did.
type SweepResult struct {
	Scanned   int
	Completed int
	Failed    int
	Pending   int
	Errors    int
}

// Sweeper resolves transfers whose callback never arrived by polling the gateway.
type Sweeper struct {
	reconciler  *Reconciler
	client      gateway.Client
	grace       time.Duration
	batch       int
	maxAttempts int
}

func NewSweeper(p SweepParams) (*Sweeper, error) {
	if p.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if p.Client == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	s := &Sweeper{
		reconciler:  p.Reconciler,
		client:      p.Client,
		grace:       p.Grace,
		batch:       p.BatchSize,
		maxAttempts: p.MaxPollAttempts,
	}
	if s.grace <= 0 {
		s.grace = defaultGrace
	}
	if s.batch <= 0 {
		s.batch = defaultSweepBatch
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxPollAttempt
	}
	return s, nil
}

// Sweep polls every transfer pending longer than the grace window. Polling errors
// count against the transfer; after the last attempt it is marked failed.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	r := s.reconciler
	cutoff := r.clock.Now().Add(-s.grace)
	stale, err := r.repo.ListStalePending(ctx, cutoff, s.batch)
	if err != nil {
		return res, fmt.Errorf("list stale transfers: %w", err)
	}
	res.Scanned = len(stale)

	for i := range stale {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		outcome, err := s.resolve(ctx, &stale[i])
		if err != nil {
			res.Errors++
			continue
		}
		switch outcome {
		case OutcomeCompleted:
			res.Completed++
		case OutcomeFailed:
			res.Failed++
		case OutcomePending:
			res.Pending++
		}
	}
	return res, nil
}

func (s *Sweeper) resolve(ctx context.Context, t *models.Transfer) (Outcome, error) {
	r := s.reconciler
	ctx = r.logg.WithIdempotencyCode(ctx, t.IdempotencyCode)
	if t.GatewayRef == nil {
		return OutcomePending, nil
	}

	result, err := s.client.QueryStatus(ctx, gateway.StatusQuery{Kind: t.Kind, RequestID: *t.GatewayRef})
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeGatewayTerminal) {
			attempts, incErr := r.repo.IncrementPollAttempts(ctx, t.ID)
			if incErr != nil {
				return "", incErr
			}
			if attempts < s.maxAttempts {
				r.logg.Warn(r.logg.WithField(ctx, "poll_attempts", attempts), "gateway status poll failed")
				return OutcomePending, nil
			}
		}
		return r.Fail(ctx, t.ID, fmt.Sprintf("status poll gave up: %v", err))
	}
	if result == nil {
		return OutcomePending, nil
	}
	return r.Finalize(ctx, t.ID, *result)
}
