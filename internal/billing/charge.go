// Package billing generates monthly subscription charges and drives the
// overdue escalation that suspends non-paying stores.
package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrChargeNotFound  = errors.New("billing: charge not found")
	ErrDuplicateCharge = errors.New("billing: charge already exists for this cycle")
	ErrChargePaid      = errors.New("billing: charge is already paid")
	ErrChargeCancelled = errors.New("billing: charge is cancelled")
)

// ChargeStatus is the collection state of a single monthly charge.
type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargeOverdue   ChargeStatus = "overdue"
	ChargePaid      ChargeStatus = "paid"
	ChargeCancelled ChargeStatus = "cancelled"
)

// PaymentMethod records how a charge was settled.
type PaymentMethod string

const (
	MethodPix     PaymentMethod = "pix"
	MethodBoleto  PaymentMethod = "boleto"
	MethodGateway PaymentMethod = "gateway-generic"
)

// RestrictionLevel is the service restriction applied to a tenant
// based on how long its oldest open charge has been overdue.
type RestrictionLevel string

const (
	RestrictionNone        RestrictionLevel = "none"
	RestrictionLimitAccess RestrictionLevel = "limit_access"
	RestrictionSuspend     RestrictionLevel = "suspend"
)

// Charge is one month of subscription billing for a tenant.
// At most one charge exists per (tenant, due date) pair.
type Charge struct {
	ID            string           `json:"id"`
	TenantID      string           `json:"tenantId"`
	Amount        decimal.Decimal  `json:"amount"`
	DueDate       time.Time        `json:"dueDate"`
	Status        ChargeStatus     `json:"status"`
	DaysOverdue   int              `json:"daysOverdue"`
	PaymentMethod PaymentMethod    `json:"paymentMethod,omitempty"`
	PaymentRef    string           `json:"paymentRef,omitempty"`
	PaidAt        *time.Time       `json:"paidAt,omitempty"`
	CancelledAt   *time.Time       `json:"cancelledAt,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Open reports whether the charge still awaits payment.
func (c *Charge) Open() bool {
	return c.Status == ChargePending || c.Status == ChargeOverdue
}

// OwnerTenantID satisfies the access gate's ownership check.
func (c *Charge) OwnerTenantID() string {
	return c.TenantID
}
