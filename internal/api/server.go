package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xerolink/xerolink/internal/config"
	"github.com/xerolink/xerolink/internal/errors"
	"github.com/xerolink/xerolink/internal/logging"
	"github.com/xerolink/xerolink/internal/metrics"
	"github.com/xerolink/xerolink/internal/reports"
	"github.com/xerolink/xerolink/internal/store"
	"github.com/xerolink/xerolink/internal/xero"
)

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	config      config.ServerConfig
	apiConfig   config.APIConfig
	store       store.Store
	tokens      *xero.TokenManager
	fetcher     *xero.Fetcher
	reports     *reports.Assembler
	metrics     *metrics.Metrics
	logger      *logging.Logger
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, apiCfg config.APIConfig, st store.Store, tokens *xero.TokenManager, fetcher *xero.Fetcher, assembler *reports.Assembler, m *metrics.Metrics, logger *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	requestsPerMinute := apiCfg.RateLimit.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = 600
	}
	burst := apiCfg.RateLimit.Burst
	if burst <= 0 {
		burst = 60
	}
	rateLimiter := newIPRateLimiter(time.Minute/time.Duration(requestsPerMinute), burst)

	server := &Server{
		router:      gin.New(),
		config:      cfg,
		apiConfig:   apiCfg,
		store:       st,
		tokens:      tokens,
		fetcher:     fetcher,
		reports:     assembler,
		metrics:     m,
		logger:      logger.Component("api"),
		rateLimiter: rateLimiter,
	}
	server.router.HandleMethodNotAllowed = true

	server.router.Use(gin.Recovery())
	server.router.Use(rateLimitMiddleware(rateLimiter))
	server.router.Use(bodyLimitMiddleware(1 << 20))
	server.router.Use(metrics.Middleware(m, server.logger))
	server.router.Use(loggingMiddleware(server.logger))

	server.setupRoutes()
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.NewCorrelationID()
		}

		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		duration := time.Since(start).Seconds()
		logger.InfoCtx(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", duration,
		)
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint - NO authentication required
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Health check - NO authentication required
	s.router.GET("/health", s.handleHealth)

	// OAuth callback - identity comes from the stored state, not a key
	s.router.GET("/xero/callback", s.handleCallback)

	authMiddleware := APIKeyAuth(s.apiConfig.Auth.APIKeys, s.apiConfig.Auth.HeaderName, s.logger)

	company := s.router.Group("/companies/:company_id/xero")
	company.Use(authMiddleware)
	{
		company.GET("/auth-url", s.handleAuthURL)
		company.GET("/status", s.handleStatus)
		company.GET("/tenants", s.handleTenants)
		company.POST("/tenant", s.handleSelectTenant)
		company.DELETE("/connection", s.handleDisconnect)
		company.POST("/refresh-token", s.handleRefreshToken)
		company.PUT("/settings", s.handleSaveSettings)
		company.GET("/settings", s.handleGetSettings)
		company.GET("/data/:resource_type", s.handleData)
		company.GET("/invoices", s.handleInvoices)
		company.GET("/contacts", s.handleContacts)
		company.GET("/reports/bas", s.handleBAS)
		company.GET("/reports/fas", s.handleFAS)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	if s.httpServer == nil {
		s.httpServer = NewHTTPServer(addr, s.router)
	}

	s.logger.Info("starting HTTP server", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	return nil
}

// Shutdown gracefully shuts down the server and closes the store
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	var errList []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err.Error())
			errList = append(errList, &errors.ErrServerShutdown{Err: err})
		}
	}

	s.rateLimiter.Stop()

	// The store closes only after the HTTP drain, so in-flight handlers
	// never see a closed database.
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errList = append(errList, fmt.Errorf("store close: %w", err))
		}
	}

	if len(errList) > 0 {
		return fmt.Errorf("shutdown errors: %v", errList)
	}

	s.logger.Info("graceful shutdown completed")
	return nil
}

// handleHealth returns health status
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
