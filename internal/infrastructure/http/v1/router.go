// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	corecounter "erpcounter/internal/core/counter"
	"erpcounter/internal/infrastructure/http/v1/handlers"
	"erpcounter/internal/infrastructure/http/v1/middleware"
	"erpcounter/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Logger *logger.Logger

	// Issuer issues document numbers (the counter service).
	Issuer handlers.CounterIssuer

	// Definitions serves GET /counters/:code.
	Definitions corecounter.DefinitionStore

	// Retry is applied around Issuer on serialization conflicts.
	Retry corecounter.RetryPolicy

	// DB backs the readiness probe.
	DB       handlers.Pinger
	DBDriver string
	Version  string

	// Metrics, when set, is served at MetricsPath.
	Metrics     http.Handler
	MetricsPath string

	// TracingService, when set, names the otelgin server spans.
	TracingService string

	// Development enables gin debug mode.
	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	middleware.SetupValidator()
	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	if cfg.TracingService != "" {
		router.Use(middleware.Tracing(cfg.TracingService)...)
	}
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.DBDriver, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(cfg.Metrics))
	}

	counterHandler := handlers.NewCounterHandler(cfg.Issuer, cfg.Definitions, cfg.Retry)
	api := router.Group("/api/v1")
	counters := api.Group("/counters")
	{
		counters.GET("/:code", counterHandler.Get)
		counters.POST("/:code/next", counterHandler.Next)
	}

	return router
}
