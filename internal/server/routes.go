package server

import (
	"github.com/gin-gonic/gin"
	"github.com/nulzo/llm-proxy/internal/server/middleware"
	v1 "github.com/nulzo/llm-proxy/internal/server/v1"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) SetupRoutes() {
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.ErrorHandler(s.logger))
	if s.config.Tracing.Enabled {
		s.router.Use(middleware.Tracing(s.config.Tracing.ServiceName))
	}

	models := v1.NewModelHandler(s.deps.Models, s.deps.Version)

	// public
	s.router.GET("/", models.Index)
	s.router.GET("/health", models.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/")
	if s.config.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst, s.logger)
		api.Use(limiter.Middleware())
	}
	api.Use(middleware.Auth(s.config.Server.APIKeys))
	{
		api.GET("/models", models.ListModels)

		chat := v1.NewChatHandler(s.deps.Dispatcher, s.logger)
		api.POST("/chat/completions", chat.CreateCompletion)

		accounting := v1.NewAccountingHandler(s.deps.Accountant)
		api.POST("/tokens/count", accounting.CountTokens)
		api.POST("/cost/estimate", accounting.EstimateCost)

		if s.deps.Usage != nil {
			usage := v1.NewAnalyticsHandler(s.deps.Usage)
			api.GET("/usage", usage.GetUsage)
			api.GET("/usage/:id", usage.GetRecord)
		}
	}
}
