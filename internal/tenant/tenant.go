// Package tenant implements the tenant lifecycle for the Lojix platform:
// registration, admin approval, suspension, cancellation, and the retention
// window that gates physical deletion.
package tenant

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Errors
var (
	ErrTenantNotFound   = errors.New("tenant: not found")
	ErrUserNotFound     = errors.New("tenant: store user not found")
	ErrOwnerEmailTaken  = errors.New("tenant: owner email already registered")
	ErrUserEmailTaken   = errors.New("tenant: user email already in use for this store")
	ErrNotPending       = errors.New("tenant: not in pending status")
	ErrNotActive        = errors.New("tenant: not in active status")
	ErrNotSuspended     = errors.New("tenant: not in suspended status")
	ErrAlreadyCancelled = errors.New("tenant: already cancelled")
	ErrReasonRequired   = errors.New("tenant: reason is required")
)

// Status represents a tenant's subscription lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Role identifies what a store user may do inside their store.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleOwner, RoleManager, RoleCashier:
		return true
	}
	return false
}

// Tenant represents a subscribing store. It is the unit of billing and of
// data isolation.
type Tenant struct {
	ID              string          `json:"id"`
	StoreName       string          `json:"storeName"`
	OwnerName       string          `json:"ownerName"`
	OwnerEmail      string          `json:"ownerEmail"`
	OwnerPhone      string          `json:"ownerPhone"`
	Status          Status          `json:"status"`
	TrialEndsAt     time.Time       `json:"trialEndsAt,omitempty"`
	MonthlyPrice    decimal.Decimal `json:"monthlyPrice"`
	ApprovedByAdmin bool            `json:"approvedByAdmin"`
	ApprovedAt      *time.Time      `json:"approvedAt,omitempty"`
	ApprovedBy      string          `json:"approvedBy,omitempty"`
	// CancelledAt is set exactly once, when the tenant transitions to
	// cancelled through Cancel. Rejected registrations stay nil: no
	// retention countdown applies to a tenant that never activated.
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// StoreUser is an employee of a tenant. Users are deactivated to revoke
// access, never deleted.
type StoreUser struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
