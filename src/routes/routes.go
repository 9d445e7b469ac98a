package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trade-performance/src/config"
	"trade-performance/src/handlers"
	"trade-performance/src/middleware"
	"trade-performance/src/observability"
)

func SetupRoutes(app *fiber.App, cfg *config.Config, handler *handlers.PerformanceHandler, metrics *observability.Metrics) *middleware.ServiceAvailability {
	serviceAvailability := middleware.NewServiceAvailabilityFromConfig(cfg.App)
	app.Use(serviceAvailability.Middleware())
	app.Use(middleware.RequestLogger(cfg.App.RequestLoggingDisabled))

	api := app.Group("/api/v1")

	if !cfg.RateLimit.Disabled {
		rateLimiter := middleware.NewRateLimiterFromConfig(cfg.RateLimit)
		api.Use(rateLimiter.Middleware())
	}

	api.Get("/performance/:symbol", handler.GetPerformance)
	api.Get("/performance/:symbol/daily", handler.GetDailyPerformance)
	api.Get("/performance/:symbol/lots", handler.GetLots)
	api.Post("/trades/:symbol/sync", handler.SyncTrades)

	app.Get("/health", handler.HealthCheck)
	app.Get("/metrics", handler.GetMetrics)
	if metrics != nil {
		app.Get("/metrics/prometheus", adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	}

	return serviceAvailability
}

func Endpoints() []string {
	return []string{
		"GET    /api/v1/performance/:symbol",
		"GET    /api/v1/performance/:symbol/daily",
		"GET    /api/v1/performance/:symbol/lots",
		"POST   /api/v1/trades/:symbol/sync",
		"GET    /health",
		"GET    /metrics",
		"GET    /metrics/prometheus",
	}
}
