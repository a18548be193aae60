package server

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/nulzo/llm-proxy/internal/analytics"
	"github.com/nulzo/llm-proxy/internal/config"
	"github.com/nulzo/llm-proxy/internal/server/middleware"
	v1 "github.com/nulzo/llm-proxy/internal/server/v1"
	"github.com/nulzo/llm-proxy/internal/server/validator"
	"go.uber.org/zap"
)

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Dispatcher v1.Dispatcher
	Models     v1.ModelCatalog
	Accountant v1.Accountant
	Usage      analytics.Service
	Version    string
}

type Server struct {
	router *gin.Engine
	config *config.Config
	logger *zap.Logger
	deps   Deps
}

func New(cfg *config.Config, logger *zap.Logger, deps Deps) *Server {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	validator.InitValidator()

	engine := gin.New()
	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(middleware.Logger(logger))

	s := &Server{
		router: engine,
		config: cfg,
		logger: logger,
		deps:   deps,
	}

	s.SetupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the router with timeouts suited to long streamed
// completions: no write timeout, bounded header reads.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              ":" + s.config.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
