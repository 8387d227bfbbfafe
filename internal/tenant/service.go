package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lojix/lojix/internal/idgen"
	"github.com/lojix/lojix/internal/validation"
	"github.com/shopspring/decimal"
)

// TrialDays is the trial length granted on registration.
const TrialDays = 7

// RetentionDays is how long a cancelled tenant's data is kept before it
// becomes eligible for physical deletion.
const RetentionDays = 90

// Service implements tenant lifecycle operations on top of a Store.
type Service struct {
	store        Store
	logger       *slog.Logger
	defaultPrice decimal.Decimal
	now          func() time.Time
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithNow overrides the time source (for tests).
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithDefaultPrice sets the monthly price applied when registration omits one.
func WithDefaultPrice(price decimal.Decimal) ServiceOption {
	return func(s *Service) { s.defaultPrice = price }
}

// NewService creates a tenant lifecycle service.
func NewService(store Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:        store,
		logger:       logger,
		defaultPrice: decimal.NewFromFloat(99.90),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -----------------------------------------------------------------------------
// Pure helpers
// -----------------------------------------------------------------------------

// TrialEndDate returns the trial end date for a registration at now:
// now + 7 calendar days, formatted YYYY-MM-DD. AddDate does calendar
// arithmetic, so month and year rollovers are exact regardless of timezone
// offsets or DST.
func TrialEndDate(now time.Time) string {
	return now.UTC().AddDate(0, 0, TrialDays).Format("2006-01-02")
}

// DeletionDate returns the moment a cancelled tenant's data may be purged.
func DeletionDate(cancelledAt time.Time) time.Time {
	return cancelledAt.AddDate(0, 0, RetentionDays)
}

// WithinRetentionPeriod reports whether a tenant's data must still be kept.
// A nil cancelledAt means there is nothing to retire. The boundary at
// exactly RetentionDays is outside the retention period.
func WithinRetentionPeriod(cancelledAt *time.Time, now time.Time) bool {
	if cancelledAt == nil {
		return true
	}
	return now.Before(DeletionDate(*cancelledAt))
}

// EligibleForDeletion reports whether a tenant may be physically purged.
func EligibleForDeletion(status Status, cancelledAt *time.Time, now time.Time) bool {
	return status == StatusCancelled &&
		cancelledAt != nil &&
		!WithinRetentionPeriod(cancelledAt, now)
}

// Approval is the update an admin approval applies to a pending tenant.
// It is a pure function of (adminID, timestamp) so the transition can be
// verified independent of storage.
type Approval struct {
	ApprovedByAdmin bool
	Status          Status
	ApprovedAt      time.Time
	ApprovedBy      string
}

// ApprovalUpdate computes the approval transition.
func ApprovalUpdate(adminID string, now time.Time) Approval {
	return Approval{
		ApprovedByAdmin: true,
		Status:          StatusActive,
		ApprovedAt:      now,
		ApprovedBy:      adminID,
	}
}

// -----------------------------------------------------------------------------
// Lifecycle operations
// -----------------------------------------------------------------------------

// RegisterInput carries the fields a store submits to sign up.
type RegisterInput struct {
	StoreName    string
	OwnerName    string
	OwnerEmail   string
	OwnerPhone   string
	MonthlyPrice *decimal.Decimal // nil uses the configured default
}

// Register validates the input and creates a tenant in pending status.
// Field problems come back as validation.Errors; a duplicate owner email
// comes back as ErrOwnerEmailTaken.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Tenant, error) {
	in.StoreName = validation.SanitizeString(in.StoreName, 200)
	in.OwnerName = validation.SanitizeString(in.OwnerName, 200)
	in.OwnerEmail = validation.NormalizeEmail(in.OwnerEmail)
	in.OwnerPhone = validation.SanitizeString(in.OwnerPhone, 40)

	if errs := validation.Validate(
		validation.Required("storeName", in.StoreName),
		validation.Required("ownerName", in.OwnerName),
		validation.Required("ownerEmail", in.OwnerEmail),
		validation.Required("ownerPhone", in.OwnerPhone),
		validation.ValidEmail("ownerEmail", in.OwnerEmail),
	); len(errs) > 0 {
		return nil, errs
	}

	if _, err := s.store.GetByOwnerEmail(ctx, in.OwnerEmail); err == nil {
		return nil, ErrOwnerEmailTaken
	} else if err != ErrTenantNotFound {
		return nil, fmt.Errorf("check owner email: %w", err)
	}

	price := s.defaultPrice
	if in.MonthlyPrice != nil {
		price = *in.MonthlyPrice
	}

	now := s.now()
	t := &Tenant{
		ID:           idgen.WithPrefix("ten_"),
		StoreName:    in.StoreName,
		OwnerName:    in.OwnerName,
		OwnerEmail:   in.OwnerEmail,
		OwnerPhone:   in.OwnerPhone,
		Status:       StatusPending,
		MonthlyPrice: price,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// trial_ends_at is a storage default (creation date + TrialDays);
	// TrialEndDate exists for callers that need the value up front.

	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("tenant registered",
		"tenant_id", t.ID,
		"store", t.StoreName,
		"trial_ends", TrialEndDate(now),
	)
	return t, nil
}

// Approve moves a pending tenant to active and creates its owner user.
// Only legal from pending.
func (s *Service) Approve(ctx context.Context, tenantID, adminID string) (*Tenant, error) {
	t, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, ErrNotPending
	}

	now := s.now()
	ap := ApprovalUpdate(adminID, now)
	t.ApprovedByAdmin = ap.ApprovedByAdmin
	t.Status = ap.Status
	t.ApprovedAt = &ap.ApprovedAt
	t.ApprovedBy = ap.ApprovedBy
	t.UpdatedAt = now

	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}

	owner := &StoreUser{
		ID:        idgen.WithPrefix("usr_"),
		TenantID:  t.ID,
		Name:      t.OwnerName,
		Email:     t.OwnerEmail,
		Role:      RoleOwner,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUser(ctx, owner); err != nil {
		return nil, fmt.Errorf("tenant approved but owner user creation failed: %w", err)
	}

	s.logger.Info("tenant approved", "tenant_id", t.ID, "admin_id", adminID)
	return t, nil
}

// Reject declines a pending registration. The tenant becomes cancelled but
// CancelledAt stays nil: a store that never activated has no retention
// countdown.
func (s *Service) Reject(ctx context.Context, tenantID, reason string) (*Tenant, error) {
	if len(reason) == 0 || len(validation.SanitizeString(reason, 500)) == 0 {
		return nil, ErrReasonRequired
	}

	t, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, ErrNotPending
	}

	t.Status = StatusCancelled
	t.UpdatedAt = s.now()
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("tenant rejected", "tenant_id", t.ID, "reason", reason)
	return t, nil
}

// Suspend moves an active tenant to suspended. Only legal from active.
func (s *Service) Suspend(ctx context.Context, tenantID, reason string) (*Tenant, error) {
	t, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusActive {
		return nil, ErrNotActive
	}

	t.Status = StatusSuspended
	t.UpdatedAt = s.now()
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("tenant suspended", "tenant_id", t.ID, "reason", reason)
	return t, nil
}

// Reactivate moves a suspended tenant back to active. Only legal from suspended.
func (s *Service) Reactivate(ctx context.Context, tenantID string) (*Tenant, error) {
	t, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusSuspended {
		return nil, ErrNotSuspended
	}

	t.Status = StatusActive
	t.UpdatedAt = s.now()
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("tenant reactivated", "tenant_id", t.ID)
	return t, nil
}

// Cancel terminates a subscription from any non-cancelled status and stamps
// CancelledAt, starting the retention countdown. There is no revert path.
func (s *Service) Cancel(ctx context.Context, tenantID, reason string) (*Tenant, error) {
	t, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	now := s.now()
	t.Status = StatusCancelled
	t.CancelledAt = &now
	t.UpdatedAt = now
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("tenant cancelled",
		"tenant_id", t.ID,
		"reason", reason,
		"deletion_date", DeletionDate(now).Format("2006-01-02"),
	)
	return t, nil
}

// ListEligibleForDeletion returns cancelled tenants whose retention period
// has fully elapsed. The out-of-band purge consumes this list.
func (s *Service) ListEligibleForDeletion(ctx context.Context) ([]*Tenant, error) {
	cutoff := s.now().AddDate(0, 0, -RetentionDays)
	return s.store.ListCancelledBefore(ctx, cutoff)
}

// -----------------------------------------------------------------------------
// Store users
// -----------------------------------------------------------------------------

// AddUser creates an employee for a tenant, active by default.
func (s *Service) AddUser(ctx context.Context, tenantID, name, email string, role Role) (*StoreUser, error) {
	name = validation.SanitizeString(name, 200)
	email = validation.NormalizeEmail(email)

	if errs := validation.Validate(
		validation.Required("name", name),
		validation.Required("email", email),
		validation.ValidEmail("email", email),
	); len(errs) > 0 {
		return nil, errs
	}
	if !ValidRole(role) {
		return nil, validation.Errors{{Field: "role", Message: "must be owner, manager or cashier"}}
	}

	if _, err := s.store.Get(ctx, tenantID); err != nil {
		return nil, err
	}

	now := s.now()
	u := &StoreUser{
		ID:        idgen.WithPrefix("usr_"),
		TenantID:  tenantID,
		Name:      name,
		Email:     email,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("store user added", "tenant_id", tenantID, "user_id", u.ID, "role", role)
	return u, nil
}

// DeactivateUser revokes a user's access without deleting the record.
func (s *Service) DeactivateUser(ctx context.Context, tenantID, userID string) (*StoreUser, error) {
	return s.setUserActive(ctx, tenantID, userID, false)
}

// ReactivateUser restores a previously deactivated user's access.
func (s *Service) ReactivateUser(ctx context.Context, tenantID, userID string) (*StoreUser, error) {
	return s.setUserActive(ctx, tenantID, userID, true)
}

func (s *Service) setUserActive(ctx context.Context, tenantID, userID string, active bool) (*StoreUser, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	// A user id from another tenant is reported as not found, never as
	// someone else's record.
	if u.TenantID != tenantID {
		return nil, ErrUserNotFound
	}

	u.Active = active
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("store user access changed",
		"tenant_id", tenantID, "user_id", userID, "active", active)
	return u, nil
}
