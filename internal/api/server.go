package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/helixcode-ai/hx-model-manager/internal/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the HTTP server wiring.
type Options struct {
	APIToken string
}

// Server wraps the Gin engine and associated configuration.
type Server struct {
	engine *gin.Engine
}

// NewServer constructs a Server with all HTTP routes configured.
func NewServer(handler *handlers.Handler, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestIDMiddleware(), metricsMiddleware(), requestLogger())

	// Health + meta
	engine.GET("/healthz", handler.Health)
	engine.GET("/system/info", handler.SystemInfo)
	engine.GET("/events", handler.StreamEvents)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Models
	engine.GET("/models", handler.ListModels)
	engine.GET("/models/*name", handler.GetModel)

	// Downloads
	engine.GET("/downloads", handler.ListDownloads)
	engine.GET("/downloads/history", handler.DownloadHistory)
	engine.GET("/downloads/:id", handler.GetDownload)

	// Performance
	engine.GET("/metrics/models", handler.CompareModels)
	engine.GET("/metrics/models/*name", handler.ModelMetrics)

	protected := engine.Group("/")
	protected.Use(authMiddleware(opts.APIToken))

	protected.POST("/models/download", handler.StartDownload)
	protected.POST("/models/verify", handler.VerifyModel)
	protected.DELETE("/models/*name", handler.DeleteModel)
	protected.POST("/downloads/:id/cancel", handler.CancelDownload)
	protected.POST("/analyze", handler.Analyze)

	return &Server{engine: engine}
}

// Engine exposes the underlying Gin engine for advanced use (testing, etc.).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start launches the HTTP server on the provided address.
func (s *Server) Start(addr string) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()
	return srv
}
