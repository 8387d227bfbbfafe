package tenant

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lojix/lojix/internal/validation"
	"github.com/shopspring/decimal"
)

// Handler provides HTTP endpoints for tenant lifecycle management.
type Handler struct {
	svc   *Service
	store Store
}

// NewHandler creates a new tenant handler.
func NewHandler(svc *Service, store Store) *Handler {
	return &Handler{svc: svc, store: store}
}

// RegisterPublicRoutes sets up the self-service registration route.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/tenants", h.Register)
}

// RegisterAdminRoutes sets up the admin-only lifecycle routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/tenants", h.List)
	r.GET("/tenants/:id", h.Get)
	r.POST("/tenants/:id/approve", h.Approve)
	r.POST("/tenants/:id/reject", h.Reject)
	r.POST("/tenants/:id/suspend", h.Suspend)
	r.POST("/tenants/:id/reactivate", h.Reactivate)
	r.POST("/tenants/:id/cancel", h.Cancel)
	r.GET("/tenants/deletion-eligible", h.DeletionEligible)
	r.POST("/tenants/:id/users", h.AddUser)
	r.GET("/tenants/:id/users", h.ListUsers)
	r.POST("/tenants/:id/users/:userId/deactivate", h.DeactivateUser)
	r.POST("/tenants/:id/users/:userId/reactivate", h.ReactivateUser)
}

// Register handles POST /v1/tenants
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		StoreName    string `json:"storeName"`
		OwnerName    string `json:"ownerName"`
		OwnerEmail   string `json:"ownerEmail"`
		OwnerPhone   string `json:"ownerPhone"`
		MonthlyPrice string `json:"monthlyPrice"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	in := RegisterInput{
		StoreName:  req.StoreName,
		OwnerName:  req.OwnerName,
		OwnerEmail: req.OwnerEmail,
		OwnerPhone: req.OwnerPhone,
	}
	if req.MonthlyPrice != "" {
		price, err := decimal.NewFromString(req.MonthlyPrice)
		if err != nil || price.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_price", "message": "monthlyPrice must be a non-negative decimal"})
			return
		}
		in.MonthlyPrice = &price
	}

	t, err := h.svc.Register(c.Request.Context(), in)
	if err != nil {
		var fieldErrs validation.Errors
		if errors.As(err, &fieldErrs) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "fields": fieldErrs})
			return
		}
		if errors.Is(err, ErrOwnerEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email_taken", "message": "owner email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to register tenant"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"tenant": t})
}

// List handles GET /v1/admin/tenants?status=pending
func (h *Handler) List(c *gin.Context) {
	status := Status(c.DefaultQuery("status", string(StatusPending)))
	tenants, err := h.store.ListByStatus(c.Request.Context(), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenants": tenants, "count": len(tenants)})
}

// Get handles GET /v1/admin/tenants/:id
func (h *Handler) Get(c *gin.Context) {
	t, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// Approve handles POST /v1/admin/tenants/:id/approve
func (h *Handler) Approve(c *gin.Context) {
	var req struct {
		AdminID string `json:"adminId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "adminId required"})
		return
	}

	t, err := h.svc.Approve(c.Request.Context(), c.Param("id"), req.AdminID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// Reject handles POST /v1/admin/tenants/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "reason required"})
		return
	}

	t, err := h.svc.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// Suspend handles POST /v1/admin/tenants/:id/suspend
func (h *Handler) Suspend(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "reason required"})
		return
	}

	t, err := h.svc.Suspend(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// Reactivate handles POST /v1/admin/tenants/:id/reactivate
func (h *Handler) Reactivate(c *gin.Context) {
	t, err := h.svc.Reactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// Cancel handles POST /v1/admin/tenants/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "reason required"})
		return
	}

	t, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// DeletionEligible handles GET /v1/admin/tenants/deletion-eligible
func (h *Handler) DeletionEligible(c *gin.Context) {
	tenants, err := h.svc.ListEligibleForDeletion(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenants": tenants, "count": len(tenants)})
}

// AddUser handles POST /v1/admin/tenants/:id/users
func (h *Handler) AddUser(c *gin.Context) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  Role   `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	u, err := h.svc.AddUser(c.Request.Context(), c.Param("id"), req.Name, req.Email, req.Role)
	if err != nil {
		var fieldErrs validation.Errors
		if errors.As(err, &fieldErrs) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "fields": fieldErrs})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": u})
}

// ListUsers handles GET /v1/admin/tenants/:id/users
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// DeactivateUser handles POST /v1/admin/tenants/:id/users/:userId/deactivate
func (h *Handler) DeactivateUser(c *gin.Context) {
	u, err := h.svc.DeactivateUser(c.Request.Context(), c.Param("id"), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// ReactivateUser handles POST /v1/admin/tenants/:id/users/:userId/reactivate
func (h *Handler) ReactivateUser(c *gin.Context) {
	u, err := h.svc.ReactivateUser(c.Request.Context(), c.Param("id"), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// writeError maps service errors to HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTenantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
	case errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "user not found"})
	case errors.Is(err, ErrNotPending),
		errors.Is(err, ErrNotActive),
		errors.Is(err, ErrNotSuspended),
		errors.Is(err, ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_status", "message": err.Error()})
	case errors.Is(err, ErrReasonRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason_required", "message": "a non-blank reason is required"})
	case errors.Is(err, ErrUserEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email_taken", "message": "email already in use for this store"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
	}
}
