package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rzzdr/credit-risk-pipeline/internal/risk"
	"github.com/rzzdr/credit-risk-pipeline/internal/websocket"
	"github.com/rzzdr/credit-risk-pipeline/pkg/metrics"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/backpressure"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/circuit"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/logger"
)

// Config holds the configuration for the API server
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Mode         string // gin mode: debug, release or test
}

// BreakerReporter exposes the state of a guarded downstream dependency
type BreakerReporter interface {
	Stats() circuit.Stats
}

// Dependencies are the components the API serves. Only Calculator and Books are required.
type Dependencies struct {
	Calculator *risk.Calculator
	Books      risk.LoanBookStore
	Recorder   *metrics.Recorder
	Gatherer   prometheus.Gatherer
	Hub        *websocket.Hub
	Breakers   []BreakerReporter
	Limiter    *backpressure.ClientLimiter
}

// Server represents the API server
type Server struct {
	config     Config
	engine     *gin.Engine
	handlers   *Handlers
	deps       Dependencies
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates a new API server
func NewServer(config Config, deps Dependencies) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	s := &Server{
		config:   config,
		engine:   gin.New(),
		handlers: NewHandlers(deps),
		deps:     deps,
		log:      logger.GetLogger("api.server"),
	}
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the API server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	s.log.Infof("Starting API server on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		s.log.Info("Stopping API server")
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) setupRoutes() {
	s.engine.Use(ErrorMiddleware(), LoggingMiddleware(), CORSMiddleware())
	if s.deps.Recorder != nil {
		s.engine.Use(MetricsMiddleware(s.deps.Recorder))
	}

	h := s.handlers
	s.engine.GET("/health", h.Health)
	if s.deps.Gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics.Handler(s.deps.Gatherer)))
	}
	if s.deps.Hub != nil {
		s.engine.GET("/ws", gin.WrapF(s.deps.Hub.HandleWebSocket))
	}

	v1 := s.engine.Group("/api/v1")
	if s.deps.Limiter != nil {
		v1.Use(RateLimitMiddleware(s.deps.Limiter))
	}
	v1.GET("/scenarios", h.ListScenarios)
	v1.POST("/analyze", h.Analyze)
	v1.POST("/samples", h.GenerateSamples)

	portfolios := v1.Group("/portfolios")
	portfolios.GET("", h.ListLoanBooks)
	portfolios.POST("", h.CreateLoanBook)
	portfolios.GET("/:id", h.GetLoanBook)
	portfolios.PUT("/:id", h.ReplaceLoanBook)
	portfolios.DELETE("/:id", h.DeleteLoanBook)
	portfolios.GET("/:id/analysis", h.AnalyzePortfolio)
	portfolios.GET("/:id/metrics", h.RiskMetrics)
	portfolios.GET("/:id/regulatory", h.RegulatoryRatios)
	portfolios.GET("/:id/ifrs9", h.Staging)
	portfolios.GET("/:id/snapshot", h.Snapshot)
	portfolios.POST("/:id/stress", h.RunStressTest)
	portfolios.GET("/:id/stress/history", h.StressHistory)

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
}
