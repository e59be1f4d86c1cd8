package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/chama-backend/api/controllers"
	"github.com/angelmondragon/chama-backend/api/controllers/callbacks"
	"github.com/angelmondragon/chama-backend/api/middleware"
	"github.com/angelmondragon/chama-backend/pkg/config"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/logger"
	"github.com/angelmondragon/chama-backend/pkg/redis"
)

// redisStore is the slice of the redis client the http surface uses.
type redisStore interface {
	middleware.IdempotentStore
	redis.Pinger
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Services groups everything the controllers call.
type Services struct {
	Members       controllers.MemberService
	Groups        controllers.GroupService
	Activities    controllers.ActivityService
	Wallet        controllers.WalletService
	Balances      controllers.BalanceReader
	Contributions controllers.ContributionService
	Rotation      controllers.RotationService
	Loans         controllers.LoanService
	Fines         controllers.FineService
	Dividends     controllers.DividendService
	Callbacks     callbacks.Handler
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisStore,
	metrics http.Handler,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	registerPolicy := middleware.NewRateLimitPolicy(
		"register",
		cfg.RateLimit.RegisterWindow,
		cfg.RateLimit.RegisterIPLimit,
		cfg.RateLimit.RegisterPhoneLimit,
	)
	callbackPolicy := middleware.NewRateLimitPolicy(
		"callbacks",
		cfg.RateLimit.CallbackWindow,
		cfg.RateLimit.CallbackIPLimit,
		0,
	)

	var dbPinger, redisPinger controllers.Pinger
	if dbP != nil {
		dbPinger = dbP
	}
	if redisClient != nil {
		redisPinger = redisClient
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbPinger, redisPinger))
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	loc := time.UTC
	if svc.Activities != nil {
		loc = svc.Activities.Location()
	}

	r.Route("/api/v1/callbacks", func(r chi.Router) {
		r.Use(middleware.CallbackSecret(cfg.Gateway.CallbackSecret, logg))
		if redisClient != nil {
			r.Use(middleware.RateLimit(callbackPolicy, redisClient, logg))
		}
		r.Post("/stk", callbacks.STK(svc.Callbacks, loc, logg))
		r.Post("/b2c/result", callbacks.B2CResult(svc.Callbacks, loc, logg))
		r.Post("/b2c/timeout", callbacks.B2CResult(svc.Callbacks, loc, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		register := controllers.MemberRegister(svc.Members, cfg.JWT, logg)
		if redisClient != nil {
			r.With(middleware.RateLimit(registerPolicy, redisClient, logg)).Post("/members", register)
		} else {
			r.Post("/members", register)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			if redisClient != nil {
				r.Use(middleware.Idempotency(redisClient, logg))
			}

			r.Get("/me/wallet", controllers.WalletBalance(svc.Wallet, svc.Balances, logg))
			r.Get("/me/transfers", controllers.TransferHistory(svc.Wallet, logg))
			r.Route("/wallet", func(r chi.Router) {
				r.Post("/deposits", controllers.WalletDeposit(svc.Wallet, logg))
				r.Post("/withdrawals", controllers.WalletWithdraw(svc.Wallet, logg))
				r.Post("/transfers", controllers.WalletTransfer(svc.Wallet, logg))
			})
			r.Get("/transfers/{transferId}", controllers.TransferDetail(svc.Wallet, logg))

			r.Post("/groups", controllers.GroupCreate(svc.Groups, logg))
			r.Route("/groups/{groupId}", func(r chi.Router) {
				r.Post("/join", controllers.GroupJoin(svc.Groups, logg))
				r.Post("/registration-fee", controllers.GroupRegistrationFee(svc.Wallet, logg))
				r.Post("/activities", controllers.ActivityCreate(svc.Activities, logg))
			})

			r.Route("/activities/{activityId}", func(r chi.Router) {
				r.Get("/", controllers.ActivityDetail(svc.Activities, logg))
				r.Post("/enroll", controllers.ActivityEnroll(svc.Activities, logg))
				r.Post("/contributions", controllers.ActivityContribute(svc.Contributions, svc.Activities, logg))

				r.Get("/rotation", controllers.RotationSlots(svc.Rotation, svc.Activities, logg))
				r.Post("/rotation", controllers.RotationGenerate(svc.Rotation, svc.Activities, logg))
				r.Post("/rotation/swap", controllers.RotationSwap(svc.Rotation, svc.Activities, logg))
				r.Post("/rotation/disburse", controllers.RotationDisburse(svc.Rotation, svc.Activities, logg))

				r.Get("/loans", controllers.LoanList(svc.Loans, svc.Activities, logg))
				r.Post("/loans", controllers.LoanRequest(svc.Loans, svc.Activities, logg))

				r.Get("/fines", controllers.FineList(svc.Fines, svc.Activities, logg))
				r.Post("/fines", controllers.FineIssue(svc.Fines, svc.Activities, logg))

				r.Post("/dividends/distribute", controllers.DividendDistribute(svc.Dividends, svc.Activities, logg))
				r.Get("/dividends/disbursements", controllers.DividendDisbursements(svc.Dividends, logg))
			})

			r.Route("/loans/{loanId}", func(r chi.Router) {
				r.Post("/approve", controllers.LoanApprove(svc.Loans, svc.Activities, logg))
				r.Post("/reject", controllers.LoanReject(svc.Loans, svc.Activities, logg))
				r.Post("/repayments", controllers.LoanRepay(svc.Loans, svc.Activities, logg))
			})

			r.Post("/fines/{fineId}/pay", controllers.FinePay(svc.Fines, svc.Activities, logg))
		})
	})

	return r
}
