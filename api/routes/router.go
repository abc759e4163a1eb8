package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/schoolorders-backend/api/controllers"
	dispatchcontrollers "github.com/angelmondragon/schoolorders-backend/api/controllers/dispatches"
	ordercontrollers "github.com/angelmondragon/schoolorders-backend/api/controllers/orders"
	"github.com/angelmondragon/schoolorders-backend/api/middleware"
	"github.com/angelmondragon/schoolorders-backend/internal/auth"
	"github.com/angelmondragon/schoolorders-backend/internal/catalog"
	"github.com/angelmondragon/schoolorders-backend/internal/dispatches"
	"github.com/angelmondragon/schoolorders-backend/internal/orders"
	"github.com/angelmondragon/schoolorders-backend/internal/supportrequests"
	"github.com/angelmondragon/schoolorders-backend/internal/users"
	"github.com/angelmondragon/schoolorders-backend/pkg/auth/session"
	"github.com/angelmondragon/schoolorders-backend/pkg/config"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	"github.com/angelmondragon/schoolorders-backend/pkg/logger"
	"github.com/angelmondragon/schoolorders-backend/pkg/metrics"
	"github.com/angelmondragon/schoolorders-backend/pkg/redis"
)

// Services groups the domain services the router mounts.
type Services struct {
	Catalog         *catalog.Catalog
	Auth            auth.Service
	Users           *users.Service
	Orders          orders.Service
	Dispatches      dispatches.Service
	SupportRequests supportrequests.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	sessionChecker session.AccessSessionChecker,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	// A nil *redis.Client must not become a non-nil interface.
	var (
		idempotencyStore redis.IdempotencyStore
		limiterStore     rateLimiterStore
		readyDeps        = map[string]controllers.Pinger{"db": dbP}
	)
	if redisClient != nil {
		idempotencyStore = redisClient
		limiterStore = redisClient
		readyDeps["redis"] = redisClient
	}

	loginPolicy := middleware.NewRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	publicPolicy := middleware.NewRateLimitPolicy(
		"public",
		cfg.AuthRateLimit.PublicWindow,
		cfg.AuthRateLimit.PublicIPLimit,
		0,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readyDeps, logg))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/orders/public/{token}", func(r chi.Router) {
		r.Use(middleware.RateLimit(publicPolicy, limiterStore, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.Get("/", ordercontrollers.PublicDetail(svc.Orders, logg))
		r.Post("/", ordercontrollers.PublicSubmit(svc.Orders, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.RateLimit(loginPolicy, limiterStore, logg)).Post("/login", controllers.AuthLogin(svc.Auth, logg))
		r.Post("/logout", controllers.AuthLogout(svc.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(svc.Auth, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/catalog", controllers.CatalogList(svc.Catalog, logg))
			r.Get("/catalog/{category}", controllers.CatalogCategory(svc.Catalog, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", ordercontrollers.Create(svc.Orders, logg))
				r.Get("/", ordercontrollers.List(svc.Orders, logg))
				r.Post("/quote", ordercontrollers.Quote(svc.Orders, logg))
				r.Post("/share", ordercontrollers.Share(svc.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
				r.Put("/{orderId}", ordercontrollers.Update(svc.Orders, logg))
				r.Patch("/{orderId}/status", ordercontrollers.UpdateStatus(svc.Orders, logg))
				r.Post("/{orderId}/received", ordercontrollers.Received(svc.Orders, logg))
			})

			r.Post("/support-requests", controllers.SupportRequestCreate(svc.SupportRequests, logg))
			r.Get("/support-requests", controllers.SupportRequestList(svc.SupportRequests, logg))
		})

		r.Route("/api/admin/v1", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))

			r.Post("/users", controllers.AdminCreateUser(svc.Users, logg))

			r.Route("/dispatches", func(r chi.Router) {
				r.Post("/", dispatchcontrollers.Create(svc.Dispatches, logg))
				r.Get("/", dispatchcontrollers.List(svc.Dispatches, logg))
				r.Get("/{dispatchId}", dispatchcontrollers.Detail(svc.Dispatches, logg))
				r.Post("/{dispatchId}/dispatched", dispatchcontrollers.MarkDispatched(svc.Dispatches, logg))
				r.Post("/{dispatchId}/delivered", dispatchcontrollers.MarkDelivered(svc.Dispatches, logg))
			})
		})
	})

	return r
}

type rateLimiterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
