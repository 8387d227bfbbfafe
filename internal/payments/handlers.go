package payments

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lojix/lojix/internal/billing"
	"github.com/lojix/lojix/internal/gate"
	"github.com/lojix/lojix/internal/logging"
)

// Handler receives gateway webhooks and exposes the payment-intent
// endpoints stores use to pay a charge.
type Handler struct {
	svc     *Service
	charges billing.Store
}

func NewHandler(svc *Service, charges billing.Store) *Handler {
	return &Handler{svc: svc, charges: charges}
}

// RegisterWebhookRoutes sets up the unauthenticated gateway callback.
func (h *Handler) RegisterWebhookRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/payments", h.Webhook)
}

// RegisterRoutes sets up the tenant-facing payment endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/charges/:id/pix", h.CreatePix)
	r.POST("/charges/:id/boleto", h.CreateBoleto)
	r.GET("/charges/:id/payment-status", h.PaymentStatus)
}

// Webhook handles POST /webhooks/payments. It answers 200 for both
// "processed" and "safely ignored" so the gateway does not redeliver
// events we discard on purpose; only a signature failure is non-2xx.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "unreadable body"})
		return
	}

	result, err := h.svc.ProcessWebhook(
		c.Request.Context(),
		body,
		c.GetHeader("X-Signature"),
		c.GetHeader("X-Request-Id"),
	)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
			return
		}
		logging.L(c.Request.Context()).Error("webhook processing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// CreatePix handles POST /v1/store/charges/:id/pix
func (h *Handler) CreatePix(c *gin.Context) {
	var req struct {
		PayerEmail string `json:"payerEmail" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "payerEmail required"})
		return
	}

	charge, ok := h.openCharge(c)
	if !ok {
		return
	}

	result := h.svc.CreatePixPayment(c.Request.Context(), charge, req.PayerEmail)
	if !result.Success {
		c.JSON(http.StatusBadGateway, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateBoleto handles POST /v1/store/charges/:id/boleto
func (h *Handler) CreateBoleto(c *gin.Context) {
	var req struct {
		PayerEmail    string `json:"payerEmail" binding:"required"`
		PayerName     string `json:"payerName" binding:"required"`
		PayerDocument string `json:"payerDocument" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "payerEmail, payerName and payerDocument required"})
		return
	}

	charge, ok := h.openCharge(c)
	if !ok {
		return
	}

	result := h.svc.CreateBoletoPayment(c.Request.Context(), charge, req.PayerEmail, req.PayerName, req.PayerDocument)
	if !result.Success {
		c.JSON(http.StatusBadGateway, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PaymentStatus handles GET /v1/store/charges/:id/payment-status
func (h *Handler) PaymentStatus(c *gin.Context) {
	if _, ok := h.ownedCharge(c); !ok {
		return
	}

	status, err := h.svc.CheckPaymentStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_error", "message": err.Error()})
		return
	}
	if !status.Found {
		c.JSON(http.StatusOK, gin.H{"found": false, "status": "not_found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// ownedCharge fetches the charge and asserts it belongs to the
// caller's tenant. A missing charge and a foreign one get the same
// answer, so charge ids cannot be probed.
func (h *Handler) ownedCharge(c *gin.Context) (*billing.Charge, bool) {
	gctx := gate.TenantFrom(c)
	if gctx == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "access_denied"})
		return nil, false
	}

	charge, err := h.charges.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		charge = nil
	}
	if gctx.SuperAdmin {
		if charge == nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "access_denied"})
			return nil, false
		}
		return charge, true
	}
	var owned gate.TenantOwned
	if charge != nil {
		owned = charge
	}
	if err := gate.ValidateRecordOwnership(owned, gctx.TenantID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "access_denied"})
		return nil, false
	}
	return charge, true
}

func (h *Handler) openCharge(c *gin.Context) (*billing.Charge, bool) {
	charge, ok := h.ownedCharge(c)
	if !ok {
		return nil, false
	}
	if !charge.Open() {
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_status", "message": "charge is not payable"})
		return nil, false
	}
	return charge, true
}
