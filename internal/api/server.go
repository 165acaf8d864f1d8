package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/precatorios/internal/api/handlers"
	"github.com/nexconsult/precatorios/internal/api/middleware"
	"github.com/nexconsult/precatorios/internal/config"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/services"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Server represents the HTTP server
type Server struct {
	Router      *gin.Engine
	config      *config.Config
	logger      *logrus.Logger
	services    *services.Container
	rateLimiter *middleware.RateLimiter
}

// NewServer creates a new HTTP server. ctx bounds the background work of
// the middleware.
func NewServer(ctx context.Context, cfg *config.Config, logger *logrus.Logger, services *services.Container) *Server {
	server := &Server{
		config:   cfg,
		logger:   logger,
		services: services,
	}

	server.rateLimiter = middleware.NewRateLimiter(ctx, cfg.Security.RateLimit)
	server.setupRouter()
	return server
}

// HTTPServer wraps the router with the configured timeouts
func (s *Server) HTTPServer() *http.Server {
	timeouts := s.config.Timeouts()
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.Router,
		ReadTimeout:  timeouts.ServerReadTimeout,
		WriteTimeout: timeouts.ServerWriteTimeout,
		IdleTimeout:  timeouts.ServerIdleTimeout,
	}
}

// setupRouter configures the router with all routes and middleware
func (s *Server) setupRouter() {
	s.Router = gin.New()

	// RequestID first so every later middleware sees it
	s.Router.Use(middleware.RequestID())
	s.Router.Use(middleware.Logger(s.logger))
	s.Router.Use(middleware.Recovery(s.logger))
	s.Router.Use(middleware.CORS(s.config.Security.CORS))
	s.Router.Use(middleware.Security())

	healthHandler := handlers.NewHealthHandler(s.services, s.logger)
	s.Router.GET("/health", healthHandler.GetHealth)
	s.Router.GET("/health/ready", healthHandler.GetReadiness)
	s.Router.GET("/health/live", healthHandler.GetLiveness)

	metricsHandler := handlers.NewMetricsHandler(
		s.services.Runner,
		s.services.RunManager,
		s.services.CacheService,
		s.services.BrowserService,
		s.rateLimiter,
		s.logger,
	)
	s.Router.GET("/metrics", metricsHandler.GetMetrics)

	if s.config.Server.Environment != "production" {
		s.Router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
		s.Router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
		})
	}

	regime := s.config.Extraction.Regime

	v1 := s.Router.Group("/api/v1")
	v1.Use(s.rateLimiter.Middleware())
	{
		runsHandler := handlers.NewRunsHandler(
			s.services.RunManager,
			s.services.Journal,
			s.services.Lister,
			s.services.Runner.Detector(),
			regime,
			s.logger,
		)
		runs := v1.Group("/runs")
		{
			runs.POST("", runsHandler.StartRun)
			runs.GET("", runsHandler.ListRuns)
			runs.GET("/:id", runsHandler.GetRun)
			runs.GET("/:id/outcomes", runsHandler.GetOutcomes)
			runs.GET("/:id/gaps", runsHandler.GetGaps)
			runs.GET("/:id/events", runsHandler.GetEvents)
		}

		partitionsHandler := handlers.NewPartitionsHandler(s.services.Lister, regime, s.logger)
		v1.GET("/partitions", partitionsHandler.ListPartitions)
	}

	s.Router.NoRoute(func(c *gin.Context) {
		resp := models.NewErrorResponse("NOT_FOUND", "The requested resource was not found", gin.H{"path": c.Request.URL.Path})
		resp.SetRequestID(c.GetString("request_id"))
		c.JSON(http.StatusNotFound, resp)
	})

	s.Router.HandleMethodNotAllowed = true
	s.Router.NoMethod(func(c *gin.Context) {
		resp := models.NewErrorResponse("METHOD_NOT_ALLOWED", "The requested method is not allowed for this resource", gin.H{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
		resp.SetRequestID(c.GetString("request_id"))
		c.JSON(http.StatusMethodNotAllowed, resp)
	})
}
