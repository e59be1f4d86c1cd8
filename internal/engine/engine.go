// Package engine builds the settlement services over one database client so the
// api, worker and cron binaries share the same wiring.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/angelmondragon/chama-backend/internal/activities"
	"github.com/angelmondragon/chama-backend/internal/contributions"
	"github.com/angelmondragon/chama-backend/internal/dividends"
	"github.com/angelmondragon/chama-backend/internal/fines"
	"github.com/angelmondragon/chama-backend/internal/gateway"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/internal/loans"
	"github.com/angelmondragon/chama-backend/internal/reconciler"
	"github.com/angelmondragon/chama-backend/internal/rotation"
	"github.com/angelmondragon/chama-backend/internal/tasks"
	"github.com/angelmondragon/chama-backend/internal/transfers"
	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/config"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/logger"
	"github.com/angelmondragon/chama-backend/pkg/metrics"
	"github.com/angelmondragon/chama-backend/pkg/outbox"
)

type Params struct {
	Config *config.Config
	DB     *db.Client
	// Gateway is optional; without it the engine cannot initiate or sweep
	// external transfers and Initiator and Sweeper stay nil.
	Gateway gateway.Client
	Metrics *metrics.SettlementMetrics
	Clock   clock.Clock
	Rand    *rand.Rand
	Logger  *logger.Logger
}

// Engine holds every settlement service.
type Engine struct {
	Location *time.Location
	Clock    clock.Clock

	Store      *ledger.Store
	Events     *outbox.Service
	Outbox     *outbox.Repository
	TaskRepo   tasks.Repository
	Queue      *tasks.Queue
	Directory  *activities.Directory
	Registry   *activities.Repository
	Activities *activities.Service
	Transfers  *transfers.Service

	Contributions *contributions.Service
	Rotation      *rotation.Service
	Loans         *loans.Service
	Fines         *fines.Service
	Dividends     *dividends.Service

	Reconciler *reconciler.Reconciler
	Initiator  *transfers.Initiator
	Sweeper    *reconciler.Sweeper
}

// New wires the engine and opens the platform account.
func New(ctx context.Context, p Params) (*Engine, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if p.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	cfg := p.Config
	conn := p.DB.DB()
	e := &Engine{
		Location: clock.Location(cfg.Engine.Timezone),
		Clock:    clk,
	}

	var err error
	if e.Store, err = ledger.NewStore(p.DB, ledger.NewRepository(conn), clk); err != nil {
		return nil, err
	}
	e.Outbox = outbox.NewRepository(conn)
	e.Events = outbox.NewService(e.Outbox, p.Logger, outbox.WithClock(clk.Now))
	e.TaskRepo = tasks.NewRepository(conn)
	if e.Queue, err = tasks.NewQueue(e.TaskRepo, cfg.Gateway, clk); err != nil {
		return nil, err
	}

	activityRepo := activities.NewRepository(conn)
	e.Registry = activityRepo
	e.Directory = activities.NewDirectory(activityRepo)
	if e.Activities, err = activities.NewService(e.Store, activityRepo, e.Location); err != nil {
		return nil, err
	}

	transferRepo := transfers.NewRepository(conn)
	if e.Transfers, err = transfers.NewService(transfers.ServiceParams{
		Store:     e.Store,
		Repo:      transferRepo,
		Queue:     e.Queue,
		Directory: e.Directory,
		Events:    e.Events,
		Clock:     clk,
		Location:  e.Location,
		Logger:    p.Logger,
	}); err != nil {
		return nil, err
	}

	contributionRepo := contributions.NewRepository(conn)
	if e.Contributions, err = contributions.NewService(contributions.ServiceParams{
		Store:      e.Store,
		Repo:       contributionRepo,
		Activities: activityRepo,
		Transfers:  transferRepo,
		Location:   e.Location,
		Logger:     p.Logger,
	}); err != nil {
		return nil, err
	}

	if e.Rotation, err = rotation.NewService(rotation.ServiceParams{
		Store:           e.Store,
		Repo:            rotation.NewRepository(conn),
		Activities:      activityRepo,
		Contributions:   contributionRepo,
		Transfers:       transferRepo,
		Events:          e.Events,
		Location:        e.Location,
		ShuffleAttempts: cfg.Engine.RotationShuffleAttempts,
		Rand:            p.Rand,
		Logger:          p.Logger,
	}); err != nil {
		return nil, err
	}

	loanRepo := loans.NewRepository(conn)
	if e.Loans, err = loans.NewService(loans.ServiceParams{
		Store:      e.Store,
		Repo:       loanRepo,
		Activities: activityRepo,
		Transfers:  transferRepo,
		Events:     e.Events,
		Location:   e.Location,
		Logger:     p.Logger,
	}); err != nil {
		return nil, err
	}

	fineRepo := fines.NewRepository(conn)
	if e.Fines, err = fines.NewService(fines.ServiceParams{
		Store:         e.Store,
		Repo:          fineRepo,
		Activities:    activityRepo,
		Contributions: contributionRepo,
		Transfers:     transferRepo,
		Location:      e.Location,
		Logger:        p.Logger,
	}); err != nil {
		return nil, err
	}

	if e.Dividends, err = dividends.NewService(dividends.ServiceParams{
		Store:         e.Store,
		Repo:          dividends.NewRepository(conn),
		Activities:    activityRepo,
		Contributions: contributionRepo,
		Loans:         loanRepo,
		Fines:         fineRepo,
		Transfers:     transferRepo,
		Events:        e.Events,
		Location:      e.Location,
		Logger:        p.Logger,
	}); err != nil {
		return nil, err
	}

	if e.Reconciler, err = reconciler.New(reconciler.Params{
		Store:              e.Store,
		Repo:               transferRepo,
		Events:             e.Events,
		Registrations:      e.Directory,
		Metrics:            p.Metrics,
		PlatformFeePercent: cfg.Engine.PlatformFee(),
		Location:           e.Location,
		Clock:              clk,
		Logger:             p.Logger,
	}); err != nil {
		return nil, err
	}

	if p.Gateway != nil {
		if e.Initiator, err = transfers.NewInitiator(transfers.InitiatorParams{
			Repo:   transferRepo,
			Tx:     p.DB,
			Client: p.Gateway,
			Events: e.Events,
			Clock:  clk,
			Logger: p.Logger,
		}); err != nil {
			return nil, err
		}
		if e.Sweeper, err = reconciler.NewSweeper(reconciler.SweepParams{
			Reconciler:      e.Reconciler,
			Client:          p.Gateway,
			Grace:           cfg.Engine.PendingGrace,
			BatchSize:       cfg.Engine.SweepBatchSize,
			MaxPollAttempts: cfg.Engine.SweepMaxPollAttempts,
		}); err != nil {
			return nil, err
		}
	}

	if err := e.Store.EnsurePlatformAccount(ctx); err != nil {
		return nil, fmt.Errorf("open platform account: %w", err)
	}
	return e, nil
}

// RegisterTasks binds the gateway initiation handlers. It is a no-op without a gateway.
func (e *Engine) RegisterTasks(reg *tasks.Registry) {
	if e.Initiator == nil || reg == nil {
		return
	}
	e.Initiator.Register(reg)
}
