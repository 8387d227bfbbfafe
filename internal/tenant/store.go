package tenant

import (
	"context"
	"time"
)

// Store persists tenant and store-user data.
type Store interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id string) (*Tenant, error)
	GetByOwnerEmail(ctx context.Context, email string) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) error
	// UpdateStatusIf flips a tenant's status only when it currently equals
	// from. Returns true when the row changed. This is the compare-and-swap
	// the billing path relies on; backends must implement it atomically.
	UpdateStatusIf(ctx context.Context, id string, from, to Status) (bool, error)
	ListByStatus(ctx context.Context, status Status) ([]*Tenant, error)
	// ListCancelledBefore returns cancelled tenants whose cancelled_at is
	// older than the cutoff (the retention query).
	ListCancelledBefore(ctx context.Context, cutoff time.Time) ([]*Tenant, error)

	CreateUser(ctx context.Context, u *StoreUser) error
	GetUser(ctx context.Context, id string) (*StoreUser, error)
	// GetUserByEmail resolves a store user by normalized email across all
	// tenants; the access gate uses it as the entry point for context
	// resolution.
	GetUserByEmail(ctx context.Context, email string) (*StoreUser, error)
	ListUsers(ctx context.Context, tenantID string) ([]*StoreUser, error)
	UpdateUser(ctx context.Context, u *StoreUser) error
}
