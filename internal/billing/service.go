package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lojix/lojix/internal/idgen"
	"github.com/lojix/lojix/internal/metrics"
	"github.com/lojix/lojix/internal/tenant"
	"github.com/lojix/lojix/internal/traces"
)

// Service owns charge generation, overdue escalation and settlement.
type Service struct {
	store   Store
	tenants tenant.Store
	logger  *slog.Logger
	now     func() time.Time
}

type ServiceOption func(*Service)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, tenants tenant.Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		tenants: tenants,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerationResult summarizes one monthly generation run.
type GenerationResult struct {
	DueDate time.Time `json:"dueDate"`
	Created int       `json:"created"`
	Skipped int       `json:"skipped"`
	Errors  []string  `json:"errors,omitempty"`
}

// GenerateMonthlyCharges creates next month's charge for every active
// tenant. A tenant that already has a charge for that due date is
// skipped, so the run is safe to repeat. One tenant failing does not
// stop the rest.
func (s *Service) GenerateMonthlyCharges(ctx context.Context) (*GenerationResult, error) {
	ctx, span := traces.StartSpan(ctx, "billing.generate_monthly_charges")
	defer span.End()

	now := s.now()
	dueDate := NextMonthDueDate(now)
	result := &GenerationResult{DueDate: dueDate}

	active, err := s.tenants.ListByStatus(ctx, tenant.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}

	for _, t := range active {
		if _, err := s.store.GetForCycle(ctx, t.ID, dueDate); err == nil {
			result.Skipped++
			continue
		} else if err != ErrChargeNotFound {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", t.ID, err))
			continue
		}

		c := &Charge{
			ID:        idgen.WithPrefix("chg_"),
			TenantID:  t.ID,
			Amount:    t.MonthlyPrice,
			DueDate:   dueDate,
			Status:    ChargePending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.Create(ctx, c); err != nil {
			if err == ErrDuplicateCharge {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", t.ID, err))
			continue
		}
		metrics.ChargesGeneratedTotal.Inc()
		result.Created++
	}

	s.logger.Info("monthly charges generated",
		"due_date", dueDate.Format("2006-01-02"),
		"created", result.Created,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

// EscalationResult summarizes one overdue sweep.
type EscalationResult struct {
	Examined  int      `json:"examined"`
	Escalated int      `json:"escalated"`
	Suspended int      `json:"suspended"`
	Errors    []string `json:"errors,omitempty"`
}

// UpdateOverdueStatuses recomputes days overdue for every open charge
// and applies the matching escalation. The charge is updated before
// the tenant, so a crash between the two leaves the charge state
// ahead of the tenant state, never behind. Suspension only fires on a
// tenant that is still active; a manual suspend or cancel in between
// wins.
func (s *Service) UpdateOverdueStatuses(ctx context.Context) (*EscalationResult, error) {
	ctx, span := traces.StartSpan(ctx, "billing.update_overdue_statuses")
	defer span.End()

	now := s.now()
	result := &EscalationResult{}

	open, err := s.store.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open charges: %w", err)
	}

	for _, c := range open {
		result.Examined++

		days := DaysOverdue(c.DueDate, now)
		status, restriction := OverdueStatusFor(days)
		// stored day counts never go below zero; a charge due in the
		// future is simply not overdue yet
		if days < 0 {
			days = 0
		}

		if c.Status != status || c.DaysOverdue != days {
			c.Status = status
			c.DaysOverdue = days
			c.UpdatedAt = now
			if err := s.store.Update(ctx, c); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", c.ID, err))
				continue
			}
			metrics.ChargeTransitionsTotal.WithLabelValues(string(status)).Inc()
			if status == ChargeOverdue {
				result.Escalated++
			}
		}

		if restriction != RestrictionSuspend {
			continue
		}
		swapped, err := s.tenants.UpdateStatusIf(ctx, c.TenantID, tenant.StatusActive, tenant.StatusSuspended)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: suspend tenant: %v", c.ID, err))
			continue
		}
		if swapped {
			metrics.TenantSuspensionsTotal.Inc()
			result.Suspended++
			s.logger.Warn("tenant suspended for non-payment",
				"tenant_id", c.TenantID,
				"charge_id", c.ID,
				"days_overdue", days,
			)
		}
	}
	return result, nil
}

// RestrictionFor returns the restriction a tenant should currently be
// under, derived from its oldest open charge. Restrictions are
// computed, never stored.
func (s *Service) RestrictionFor(ctx context.Context, tenantID string) (RestrictionLevel, error) {
	charges, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return RestrictionNone, err
	}
	worst := RestrictionNone
	now := s.now()
	for _, c := range charges {
		if !c.Open() {
			continue
		}
		_, r := OverdueStatusFor(DaysOverdue(c.DueDate, now))
		if severity(r) > severity(worst) {
			worst = r
		}
	}
	return worst, nil
}

func severity(r RestrictionLevel) int {
	switch r {
	case RestrictionSuspend:
		return 2
	case RestrictionLimitAccess:
		return 1
	default:
		return 0
	}
}

// ProcessPayment settles a charge and, when the payment clears the
// tenant's last open charge, lifts a billing suspension. Paid and
// cancelled charges reject further payments.
func (s *Service) ProcessPayment(ctx context.Context, chargeID string, method PaymentMethod, paymentRef string, paidAt time.Time) (*Charge, error) {
	ctx, span := traces.StartSpan(ctx, "billing.process_payment", traces.ChargeID(chargeID))
	defer span.End()

	c, err := s.store.Get(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(traces.TenantID(c.TenantID))
	switch c.Status {
	case ChargePaid:
		return nil, ErrChargePaid
	case ChargeCancelled:
		return nil, ErrChargeCancelled
	}

	now := s.now()
	c.Status = ChargePaid
	c.PaymentMethod = method
	c.PaymentRef = paymentRef
	c.PaidAt = &paidAt
	c.UpdatedAt = now
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	metrics.ChargeTransitionsTotal.WithLabelValues(string(ChargePaid)).Inc()

	// Payment is the canonical way out of suspension: one settled
	// charge reactivates the tenant even if others remain open (the
	// next escalation sweep re-suspends if they stay unpaid). The
	// CAS keeps this a no-op for tenants in any other status.
	swapped, err := s.tenants.UpdateStatusIf(ctx, c.TenantID, tenant.StatusSuspended, tenant.StatusActive)
	if err != nil {
		return c, fmt.Errorf("charge paid but reactivation failed: %w", err)
	}
	if swapped {
		metrics.TenantReactivationsTotal.Inc()
		s.logger.Info("tenant reactivated after payment",
			"tenant_id", c.TenantID,
			"charge_id", c.ID,
		)
	}

	s.logger.Info("charge paid",
		"charge_id", c.ID,
		"tenant_id", c.TenantID,
		"method", string(method),
		"amount", c.Amount.String(),
	)
	return c, nil
}

// CancelCharge voids an unpaid charge. Paid charges stay paid.
func (s *Service) CancelCharge(ctx context.Context, chargeID string) (*Charge, error) {
	c, err := s.store.Get(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	switch c.Status {
	case ChargePaid:
		return nil, ErrChargePaid
	case ChargeCancelled:
		return nil, ErrChargeCancelled
	}

	now := s.now()
	c.Status = ChargeCancelled
	c.CancelledAt = &now
	c.UpdatedAt = now
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	metrics.ChargeTransitionsTotal.WithLabelValues(string(ChargeCancelled)).Inc()

	s.logger.Info("charge cancelled", "charge_id", c.ID, "tenant_id", c.TenantID)
	return c, nil
}

// ListTenantCharges returns a tenant's billing history.
func (s *Service) ListTenantCharges(ctx context.Context, tenantID string) ([]*Charge, error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.store.ListByTenant(ctx, tenantID)
}
