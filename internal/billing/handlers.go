package billing

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lojix/lojix/internal/tenant"
)

// Handler provides HTTP endpoints for charge inspection and the
// manual triggers operators use when a scheduled run needs a re-do.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterAdminRoutes sets up the admin-only billing routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/billing/generate", h.Generate)
	r.POST("/billing/escalate", h.Escalate)
	r.GET("/billing/charges/:id", h.GetCharge)
	r.POST("/billing/charges/:id/cancel", h.CancelCharge)
	r.POST("/billing/charges/:id/pay", h.PayCharge)
	r.GET("/tenants/:id/charges", h.ListTenantCharges)
}

// Generate handles POST /v1/admin/billing/generate
func (h *Handler) Generate(c *gin.Context) {
	result, err := h.svc.GenerateMonthlyCharges(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Escalate handles POST /v1/admin/billing/escalate
func (h *Handler) Escalate(c *gin.Context) {
	result, err := h.svc.UpdateOverdueStatuses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetCharge handles GET /v1/admin/billing/charges/:id
func (h *Handler) GetCharge(c *gin.Context) {
	charge, err := h.svc.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"charge": charge})
}

// CancelCharge handles POST /v1/admin/billing/charges/:id/cancel
func (h *Handler) CancelCharge(c *gin.Context) {
	charge, err := h.svc.CancelCharge(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"charge": charge})
}

// PayCharge handles POST /v1/admin/billing/charges/:id/pay, the manual
// settlement path for payments that arrive outside the gateway.
func (h *Handler) PayCharge(c *gin.Context) {
	var req struct {
		Method     PaymentMethod `json:"method"`
		PaymentRef string        `json:"paymentRef"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}
	if req.Method == "" {
		req.Method = MethodGateway
	}

	charge, err := h.svc.ProcessPayment(c.Request.Context(), c.Param("id"), req.Method, req.PaymentRef, time.Now().UTC())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"charge": charge})
}

// ListTenantCharges handles GET /v1/admin/tenants/:id/charges
func (h *Handler) ListTenantCharges(c *gin.Context) {
	charges, err := h.svc.ListTenantCharges(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"charges": charges, "count": len(charges)})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrChargeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "charge not found"})
	case errors.Is(err, tenant.ErrTenantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
	case errors.Is(err, ErrChargePaid), errors.Is(err, ErrChargeCancelled):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_status", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
	}
}
