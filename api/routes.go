package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/packsmith/mailflow/api/handlers"
	"github.com/packsmith/mailflow/api/middleware"
	"github.com/packsmith/mailflow/internal/repository"
	"github.com/packsmith/mailflow/internal/tracing"
	"github.com/packsmith/mailflow/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// Liveness endpoint (no auth)
	r.GET("/health", handlers.HealthCheck)

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-MAILFLOW-API-KEY",
		ValidAPIKey: apikey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.TracingMiddleware())
	{
		// Provider registry endpoints
		providers := api.Group("/providers")
		{
			providers.GET("", handlers.ListProviders(s.RegistryService))
			providers.POST("", handlers.RegisterProvider(s.RegistryService))
			providers.GET("/health", handlers.ListProviderHealth(s.RegistryService))
			providers.GET("/:id", handlers.GetProvider(s.RegistryService))
			providers.PUT("/:id", handlers.UpdateProvider(s.RegistryService))
			providers.DELETE("/:id", handlers.DeleteProvider(s.RegistryService))
			providers.POST("/:id/promote", handlers.PromoteProvider(s.RegistryService))
			providers.POST("/:id/test", handlers.TestProvider(s.RegistryService))
		}

		// Routing rule endpoints
		routes := api.Group("/routing")
		{
			routes.GET("/rules", handlers.ListRoutingRules(s.RoutingService))
			routes.PUT("/rules/:taskType", handlers.SetRoutingRule(s.RoutingService))
			routes.GET("/rules/:taskType", handlers.GetRoutingRule(s.RoutingService))
			routes.DELETE("/rules/:taskType", handlers.DeleteRoutingRule(s.RoutingService))
			routes.GET("/resolve/:taskType", handlers.ResolveRoute(s.RoutingService))
		}

		// Delivery endpoints
		deliveries := api.Group("/deliveries")
		{
			deliveries.POST("", handlers.EnqueueDelivery(s.DispatchService))
			deliveries.GET("/log", handlers.SearchDeliveryLog(repos.DeliveryLogRepository))
			deliveries.GET("/:id", handlers.GetDelivery(repos.DeliveryJobRepository, repos.DeliveryLogRepository))
			deliveries.POST("/:id/cancel", handlers.CancelDelivery(s.DispatchService))
		}
	}
}
