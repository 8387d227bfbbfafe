// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/shopspring/decimal"

	"github.com/lojix/lojix/internal/billing"
	"github.com/lojix/lojix/internal/config"
	"github.com/lojix/lojix/internal/gate"
	"github.com/lojix/lojix/internal/idgen"
	"github.com/lojix/lojix/internal/logging"
	"github.com/lojix/lojix/internal/metrics"
	"github.com/lojix/lojix/internal/payments"
	"github.com/lojix/lojix/internal/ratelimit"
	"github.com/lojix/lojix/internal/schedule"
	"github.com/lojix/lojix/internal/security"
	"github.com/lojix/lojix/internal/tenant"
	"github.com/lojix/lojix/internal/traces"
	"github.com/lojix/lojix/internal/validation"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *gin.Engine

	db            *sql.DB
	gatewayClient payments.Client
	tenantStore   tenant.Store
	chargeStore   billing.Store
	tenantSvc     *tenant.Service
	billingSvc    *billing.Service
	paymentsSvc   *payments.Service
	resolver      *gate.Resolver
	loginLimiter  *gate.LoginLimiter
	scheduler     *schedule.Scheduler
	rateLimiter   *ratelimit.Limiter

	httpSrv      *http.Server
	cancelRunCtx context.CancelFunc
	ready        atomic.Bool
}

// Option customizes server construction, mainly for tests.
type Option func(*Server)

// WithStores swaps the backing stores before wiring.
func WithStores(tenants tenant.Store, charges billing.Store) Option {
	return func(s *Server) {
		s.tenantStore = tenants
		s.chargeStore = charges
	}
}

// WithGatewayClient swaps the payment gateway client.
func WithGatewayClient(client payments.Client) Option {
	return func(s *Server) { s.gatewayClient = client }
}

// New creates a fully wired server.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	logger := logging.New(cfg.LogLevel, logFormat(cfg))

	s := &Server{
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tenantStore == nil || s.chargeStore == nil {
		if cfg.DatabaseURL != "" {
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("open database: %w", err)
			}
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)
			if err := db.Ping(); err != nil {
				return nil, fmt.Errorf("ping database: %w", err)
			}
			s.db = db
			s.tenantStore = tenant.NewPostgresStore(db)
			s.chargeStore = billing.NewPostgresStore(db)
			logger.Info("using PostgreSQL stores")
		} else {
			s.tenantStore = tenant.NewMemoryStore()
			s.chargeStore = billing.NewMemoryStore()
			logger.Warn("DATABASE_URL not set, using in-memory stores")
		}
	}

	defaultPrice, err := decimal.NewFromString(cfg.DefaultMonthlyPrice)
	if err != nil {
		return nil, fmt.Errorf("parse DEFAULT_MONTHLY_PRICE: %w", err)
	}

	s.tenantSvc = tenant.NewService(s.tenantStore, logger, tenant.WithDefaultPrice(defaultPrice))
	s.billingSvc = billing.NewService(s.chargeStore, s.tenantStore, logger)

	if s.gatewayClient == nil {
		s.gatewayClient = payments.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayAccessToken)
	}
	s.paymentsSvc = payments.NewService(s.gatewayClient, s.billingSvc, cfg.GatewayWebhookSecret, logger)

	s.resolver = gate.NewResolver(s.tenantStore, cfg.SuperAdminEmails)
	s.loginLimiter = gate.NewLoginLimiter()
	s.scheduler = schedule.New(s.billingSvc, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.AllowedOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	cfg := ratelimit.DefaultConfig()
	cfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(cfg)
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Error("tracing init failed", "error", err)
	} else {
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := shutdownTraces(flushCtx); err != nil {
				s.logger.Error("trace exporter shutdown failed", "error", err)
			}
		}()
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.scheduler.Stop()

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func logFormat(cfg *config.Config) string {
	if cfg.IsProduction() {
		return "json"
	}
	return "text"
}
