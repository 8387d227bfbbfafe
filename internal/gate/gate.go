// Package gate resolves a caller's identity to a tenant context and
// enforces subscription-status and user-activation checks on every
// request. It is the single enforcement point for tenant isolation.
package gate

import (
	"context"
	"errors"
	"strings"

	"github.com/lojix/lojix/internal/metrics"
	"github.com/lojix/lojix/internal/tenant"
)

// Denial codes. Every failed resolution maps to exactly one.
type DenialCode string

const (
	NotAuthenticated DenialCode = "NOT_AUTHENTICATED"
	UserNotFound     DenialCode = "USER_NOT_FOUND"
	UserDeactivated  DenialCode = "USER_DEACTIVATED"
	TenantNotFound   DenialCode = "TENANT_NOT_FOUND"
	TenantPending    DenialCode = "TENANT_PENDING"
	TenantSuspended  DenialCode = "TENANT_SUSPENDED"
	TenantCancelled  DenialCode = "TENANT_CANCELLED"
)

// DenialError is a failed access resolution.
type DenialError struct {
	Code DenialCode
}

func (e *DenialError) Error() string {
	return "access denied: " + string(e.Code)
}

// Denial returns the denial code carried by err, if any.
func Denial(err error) (DenialCode, bool) {
	var d *DenialError
	if errors.As(err, &d) {
		return d.Code, true
	}
	return "", false
}

// Context is a successful resolution: the tenant the caller may see.
// SuperAdmin contexts carry no tenant and bypass all status checks.
type Context struct {
	TenantID   string
	Tenant     *tenant.Tenant
	User       *tenant.StoreUser
	SuperAdmin bool
}

// Resolver turns an authenticated principal email into a Context.
type Resolver struct {
	users       tenant.Store
	superAdmins map[string]bool
}

func NewResolver(store tenant.Store, superAdminEmails []string) *Resolver {
	admins := make(map[string]bool, len(superAdminEmails))
	for _, email := range superAdminEmails {
		admins[strings.ToLower(strings.TrimSpace(email))] = true
	}
	return &Resolver{users: store, superAdmins: admins}
}

// Resolve maps a principal email to a tenant-scoped context.
// The empty email means no authenticated principal.
func (r *Resolver) Resolve(ctx context.Context, principalEmail string) (*Context, error) {
	email := strings.ToLower(strings.TrimSpace(principalEmail))
	if email == "" {
		return r.deny(NotAuthenticated)
	}

	if r.superAdmins[email] {
		metrics.AccessDecisionsTotal.WithLabelValues("allowed").Inc()
		return &Context{SuperAdmin: true}, nil
	}

	user, err := r.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, tenant.ErrUserNotFound) {
			return r.deny(UserNotFound)
		}
		return nil, err
	}
	// Deactivation vetoes regardless of role.
	if !user.Active {
		return r.deny(UserDeactivated)
	}

	tn, err := r.users.Get(ctx, user.TenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return r.deny(TenantNotFound)
		}
		return nil, err
	}

	switch tn.Status {
	case tenant.StatusActive:
	case tenant.StatusPending:
		return r.deny(TenantPending)
	case tenant.StatusSuspended:
		return r.deny(TenantSuspended)
	case tenant.StatusCancelled:
		return r.deny(TenantCancelled)
	default:
		return r.deny(TenantNotFound)
	}

	metrics.AccessDecisionsTotal.WithLabelValues("allowed").Inc()
	return &Context{TenantID: tn.ID, Tenant: tn, User: user}, nil
}

func (r *Resolver) deny(code DenialCode) (*Context, error) {
	metrics.AccessDecisionsTotal.WithLabelValues("denied").Inc()
	return nil, &DenialError{Code: code}
}
