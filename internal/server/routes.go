package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lojix/lojix/internal/billing"
	"github.com/lojix/lojix/internal/gate"
	"github.com/lojix/lojix/internal/metrics"
	"github.com/lojix/lojix/internal/payments"
	"github.com/lojix/lojix/internal/tenant"
	"github.com/lojix/lojix/internal/validation"
)

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	tenantHandler := tenant.NewHandler(s.tenantSvc, s.tenantStore)
	billingHandler := billing.NewHandler(s.billingSvc)
	paymentsHandler := payments.NewHandler(s.paymentsSvc, s.chargeStore)

	v1 := s.router.Group("/v1")

	// Self-service registration, no auth.
	tenantHandler.RegisterPublicRoutes(v1)

	// Gateway callback, authenticated by signature only.
	paymentsHandler.RegisterWebhookRoutes(&s.router.RouterGroup)

	// Login throttling hooks for the identity provider.
	auth := v1.Group("/auth")
	auth.POST("/ratelimit/check", s.checkLoginRateLimit)
	auth.POST("/ratelimit/failure", s.recordLoginFailure)
	auth.POST("/ratelimit/success", s.recordLoginSuccess)

	// Back-office surface.
	admin := v1.Group("/admin")
	admin.Use(s.adminAuthMiddleware())
	tenantHandler.RegisterAdminRoutes(admin)
	billingHandler.RegisterAdminRoutes(admin)

	// Tenant-scoped surface, behind the access gate.
	store := v1.Group("/store")
	store.Use(gate.Middleware(s.resolver, gate.HeaderPrincipal))
	store.GET("/profile", s.storeProfileHandler)
	store.GET("/charges", s.storeChargesHandler)
	paymentsHandler.RegisterRoutes(store)
}

// adminAuthMiddleware guards the back-office routes with a shared
// secret. Development runs without one; production refuses to boot
// without it (config validation).
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			c.Next()
			return
		}
		provided := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.AdminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) checkLoginRateLimit(c *gin.Context) {
	email, ok := s.bindEmail(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.loginLimiter.CheckRateLimit(email))
}

func (s *Server) recordLoginFailure(c *gin.Context) {
	email, ok := s.bindEmail(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.loginLimiter.RecordFailedAttempt(email))
}

func (s *Server) recordLoginSuccess(c *gin.Context) {
	email, ok := s.bindEmail(c)
	if !ok {
		return
	}
	s.loginLimiter.RecordSuccessfulLogin(email)
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func (s *Server) bindEmail(c *gin.Context) (string, bool) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "email required"})
		return "", false
	}
	if !validation.IsValidEmail(req.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid email"})
		return "", false
	}
	return req.Email, true
}

// storeProfileHandler returns the caller's resolved tenant context.
func (s *Server) storeProfileHandler(c *gin.Context) {
	gctx := gate.TenantFrom(c)
	if gctx == nil || gctx.SuperAdmin {
		c.JSON(http.StatusOK, gin.H{"superAdmin": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tenant": gctx.Tenant,
		"user":   gctx.User,
	})
}

// storeChargesHandler lists the caller's own charges. The tenant id
// comes from the resolved context, never from the request.
func (s *Server) storeChargesHandler(c *gin.Context) {
	gctx := gate.TenantFrom(c)
	if gctx == nil || gctx.SuperAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "a tenant context is required"})
		return
	}
	charges, err := s.billingSvc.ListTenantCharges(c.Request.Context(), gctx.TenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"charges": charges, "count": len(charges)})
}

func (s *Server) healthHandler(c *gin.Context) {
	status := "healthy"
	checks := gin.H{}
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			status = "degraded"
			checks["database"] = "unreachable"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "in-memory"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"checks": checks,
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
