package billing

import (
	"context"
	"time"
)

// Store persists charges.
type Store interface {
	// Create inserts a charge. A second charge for the same
	// (tenant, due date) pair returns ErrDuplicateCharge.
	Create(ctx context.Context, c *Charge) error

	Get(ctx context.Context, id string) (*Charge, error)

	// GetForCycle fetches the charge for a tenant and due date, if any.
	GetForCycle(ctx context.Context, tenantID string, dueDate time.Time) (*Charge, error)

	Update(ctx context.Context, c *Charge) error

	// ListOpen returns every pending or overdue charge.
	ListOpen(ctx context.Context) ([]*Charge, error)

	// ListByTenant returns a tenant's charges, newest due date first.
	ListByTenant(ctx context.Context, tenantID string) ([]*Charge, error)
}
