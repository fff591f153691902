package main

import (
	"github.com/planiversary/planiversary/internal/infrastructure/httpserver"
	"github.com/planiversary/planiversary/internal/middleware"
)

// SetupRoutes configures all application routes on the server.
func SetupRoutes(server *httpserver.Server, container *Container) *httpserver.Router {
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.Logger = container.Logger

	recoveryConfig := middleware.DefaultRecoveryConfig()
	recoveryConfig.Logger = container.Logger

	router := httpserver.NewRouter(server.Echo(), httpserver.RouterConfig{
		Logger:                  container.Logger,
		AuthMiddleware:          container.AuthMiddleware.RequireAuth(),
		VerifiedEmailMiddleware: container.AuthMiddleware.RequireVerifiedEmail(),
		RateLimitMiddleware: middleware.RateLimit(middleware.RateLimitConfig{
			Logger: container.Logger,
			Store:  container.SessionStore,
		}),
		CORSConfig:     middleware.DefaultCORSConfig(),
		LoggingConfig:  loggingConfig,
		RecoveryConfig: recoveryConfig,
	})

	router.RegisterAll(container.AuthHandler)
	router.RegisterHealthEndpointsWithChecker(container)
	router.RegisterMetricsEndpoint()

	return router
}
