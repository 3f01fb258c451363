package app

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/trafficwise/platform/internal/auth"
	"github.com/trafficwise/platform/internal/guard"
	"github.com/trafficwise/platform/internal/handler"
	adminhandler "github.com/trafficwise/platform/internal/handler/admin"
	"github.com/trafficwise/platform/internal/infra"
	"github.com/trafficwise/platform/internal/provider"
	"github.com/trafficwise/platform/internal/repository"
	"github.com/trafficwise/platform/internal/service"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Pool      *pgxpool.Pool
	Config    *infra.Config
	JWTMgr    *auth.JWTManager
	Denylist  auth.Denylist
	Limiter   guard.Limiter
	Dedup     guard.Deduplicator
	Processor *provider.ProcessingClient
	Logger    *slog.Logger
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	pool := deps.Pool
	logger := deps.Logger

	// Repositories
	authUserRepo := repository.NewPgAuthUserRepository()
	profileRepo := repository.NewPgProfileRepository()
	activityRepo := repository.NewActivityRepository()
	resultRepo := repository.NewResultRepository()
	outboxRepo := repository.NewOutboxRepository()

	// Services
	identitySvc := service.NewIdentityService(pool, authUserRepo, profileRepo, outboxRepo,
		deps.JWTMgr, deps.Denylist, guard.NewLockout(pool, logger), logger)
	intakeSvc := service.NewIntakeService(pool, activityRepo, outboxRepo, deps.Processor,
		deps.Limiter, deps.Dedup, logger)
	reviewSvc := service.NewReviewService(pool, activityRepo, resultRepo, outboxRepo, logger)
	directorySvc := service.NewDirectoryService(pool, authUserRepo, profileRepo, outboxRepo, logger)
	overviewSvc := service.NewOverviewService(deps.Processor, reviewSvc, logger)

	// Handlers
	gates := handler.NewGates(identitySvc, logger)
	identityHandler := handler.NewIdentityHandler(identitySvc)
	activityHandler := handler.NewActivityHandler(intakeSvc, reviewSvc, deps.Config.MaxUploadBytes)

	// Admin handlers
	reviewAdmin := adminhandler.NewReviewHandler(reviewSvc)
	profileAdmin := adminhandler.NewProfileHandler(directorySvc, logger)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.Metrics)
	r.Use(handler.CORSWithOrigins(deps.Config.CORSAllowedOrigins))
	r.Use(handler.JSONContentType)
	r.Use(auth.Authenticate(deps.JWTMgr, deps.Denylist, logger))

	// Ungated
	r.Get("/health", handler.HealthHandler(pool))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/links/dispatch", handler.LinksHandler(logger))

	// Signed-out callers only
	r.Group(func(r chi.Router) {
		r.Use(gates.PublicOnly)
		r.Post("/auth/signup", identityHandler.SignUp)
		r.Post("/auth/signin", identityHandler.SignIn)
	})

	// Any signed-in caller; a missing profile must not trap the session
	r.Group(func(r chi.Router) {
		r.Use(gates.SessionOnly)
		r.Post("/auth/signout", identityHandler.SignOut)
	})

	// Any signed-in caller with a profile
	r.Group(func(r chi.Router) {
		r.Use(gates.Authenticated)
		r.Get("/auth/session", identityHandler.Session)
		r.Get("/profiles/me", identityHandler.Me)
		r.Post("/activities", activityHandler.Submit)
		r.Get("/results/me", activityHandler.MyResults)
	})

	// Admin role
	r.Route("/admin", func(r chi.Router) {
		r.Use(gates.Admin)

		r.Get("/overview", adminhandler.OverviewHandler(overviewSvc))

		r.Route("/activities", func(r chi.Router) {
			r.Get("/pending", reviewAdmin.ListPending)
			r.Post("/{id}/approve", reviewAdmin.Approve)
			r.Post("/{id}/reject", reviewAdmin.Reject)
		})
		r.Get("/results", reviewAdmin.ListResults)

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", profileAdmin.List)
			r.Post("/", profileAdmin.Create)
			r.Get("/export", profileAdmin.Export)
			r.Post("/import", profileAdmin.Import)
			r.Patch("/{uid}", profileAdmin.Edit)
			r.Delete("/{uid}", profileAdmin.Delete)
		})
	})

	return r
}
