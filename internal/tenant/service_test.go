package tenant

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, now time.Time) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store, slog.Default(), WithNow(func() time.Time { return now }))
	return svc, store
}

func registerTenant(t *testing.T, svc *Service) *Tenant {
	t.Helper()
	tn, err := svc.Register(context.Background(), RegisterInput{
		StoreName:  "Padaria Central",
		OwnerName:  "Maria Silva",
		OwnerEmail: "maria@example.com",
		OwnerPhone: "+55 11 99999-0000",
	})
	require.NoError(t, err)
	return tn
}

func TestTrialEndDate(t *testing.T) {
	now := time.Date(2026, 1, 10, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-01-17", TrialEndDate(now))

	// month rollover
	now = time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-02-04", TrialEndDate(now))

	// year rollover
	now = time.Date(2026, 12, 29, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, "2027-01-05", TrialEndDate(now))
}

func TestRegister(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	tn := registerTenant(t, svc)
	assert.Equal(t, StatusPending, tn.Status)
	assert.False(t, tn.ApprovedByAdmin)
	assert.Equal(t, "maria@example.com", tn.OwnerEmail)
	assert.True(t, tn.MonthlyPrice.Equal(decimal.RequireFromString("99.90")))

	// duplicate owner email, case-insensitive
	_, err := svc.Register(context.Background(), RegisterInput{
		StoreName:  "Outra Loja",
		OwnerName:  "Maria Silva",
		OwnerEmail: "MARIA@example.com",
		OwnerPhone: "+55 11 98888-0000",
	})
	assert.ErrorIs(t, err, ErrOwnerEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t, time.Now())

	_, err := svc.Register(context.Background(), RegisterInput{
		StoreName:  "",
		OwnerName:  "Maria",
		OwnerEmail: "not-an-email",
	})
	require.Error(t, err)
}

func TestApprove(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, now)
	tn := registerTenant(t, svc)

	approved, err := svc.Approve(context.Background(), tn.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, approved.Status)
	assert.True(t, approved.ApprovedByAdmin)
	assert.Equal(t, "admin-1", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, now, *approved.ApprovedAt)

	// owner login user is created alongside
	users, err := store.ListUsers(context.Background(), tn.ID)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, RoleOwner, users[0].Role)
	assert.Equal(t, tn.OwnerEmail, users[0].Email)
	assert.True(t, users[0].Active)

	// approving twice conflicts
	_, err = svc.Approve(context.Background(), tn.ID, "admin-1")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestApprovalUpdatePure(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := ApprovalUpdate("admin-7", at)
	b := ApprovalUpdate("admin-7", at)
	assert.Equal(t, a, b)
	assert.Equal(t, StatusActive, a.Status)
	assert.True(t, a.ApprovedByAdmin)
}

func TestReject(t *testing.T) {
	svc, _ := newTestService(t, time.Now())
	tn := registerTenant(t, svc)

	_, err := svc.Reject(context.Background(), tn.ID, "  ")
	assert.ErrorIs(t, err, ErrReasonRequired)

	rejected, err := svc.Reject(context.Background(), tn.ID, "incomplete documents")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, rejected.Status)
	// a rejected tenant never entered service, so no retention clock starts
	assert.Nil(t, rejected.CancelledAt)

	_, err = svc.Reject(context.Background(), tn.ID, "again")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestSuspendReactivate(t *testing.T) {
	svc, _ := newTestService(t, time.Now())
	tn := registerTenant(t, svc)

	// cannot suspend before approval
	_, err := svc.Suspend(context.Background(), tn.ID, "non-payment")
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = svc.Approve(context.Background(), tn.ID, "admin-1")
	require.NoError(t, err)

	suspended, err := svc.Suspend(context.Background(), tn.ID, "non-payment")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, suspended.Status)

	// cannot reactivate an active tenant
	_, err = svc.Suspend(context.Background(), tn.ID, "again")
	assert.ErrorIs(t, err, ErrNotActive)

	reactivated, err := svc.Reactivate(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, reactivated.Status)

	_, err = svc.Reactivate(context.Background(), tn.ID)
	assert.ErrorIs(t, err, ErrNotSuspended)
}

func TestCancel(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)
	tn := registerTenant(t, svc)
	_, err := svc.Approve(context.Background(), tn.ID, "admin-1")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), tn.ID, "owner request")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, now, *cancelled.CancelledAt)

	_, err = svc.Cancel(context.Background(), tn.ID, "again")
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestRetentionWindow(t *testing.T) {
	cancelledAt := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	deletion := DeletionDate(cancelledAt)
	assert.Equal(t, time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC), deletion)

	day89 := cancelledAt.AddDate(0, 0, 89)
	day90 := cancelledAt.AddDate(0, 0, 90)
	day91 := cancelledAt.AddDate(0, 0, 91)

	assert.True(t, WithinRetentionPeriod(&cancelledAt, day89))
	assert.False(t, WithinRetentionPeriod(&cancelledAt, day90))
	assert.False(t, WithinRetentionPeriod(&cancelledAt, day91))

	assert.False(t, EligibleForDeletion(StatusCancelled, &cancelledAt, day89))
	assert.True(t, EligibleForDeletion(StatusCancelled, &cancelledAt, day90))
	assert.True(t, EligibleForDeletion(StatusCancelled, &cancelledAt, day91))

	// only cancelled tenants age out
	assert.False(t, EligibleForDeletion(StatusActive, &cancelledAt, day91))
}

func TestRetentionWithoutCancellationTimestamp(t *testing.T) {
	// rejected tenants have no cancellation timestamp and are kept
	assert.True(t, WithinRetentionPeriod(nil, time.Now()))
	assert.False(t, EligibleForDeletion(StatusCancelled, nil, time.Now()))
}

func TestListEligibleForDeletion(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)

	oldSvc := NewService(svc.store, slog.Default(), WithNow(func() time.Time { return old }))
	tn1 := registerTenant(t, oldSvc)
	_, err := oldSvc.Approve(context.Background(), tn1.ID, "admin-1")
	require.NoError(t, err)
	_, err = oldSvc.Cancel(context.Background(), tn1.ID, "churn")
	require.NoError(t, err)

	recentSvc := NewService(svc.store, slog.Default(), WithNow(func() time.Time { return recent }))
	tn2, err := recentSvc.Register(context.Background(), RegisterInput{
		StoreName:  "Loja Dois",
		OwnerName:  "Ana",
		OwnerEmail: "ana@example.com",
		OwnerPhone: "+55 21 97777-0000",
	})
	require.NoError(t, err)
	_, err = recentSvc.Approve(context.Background(), tn2.ID, "admin-1")
	require.NoError(t, err)
	_, err = recentSvc.Cancel(context.Background(), tn2.ID, "churn")
	require.NoError(t, err)

	eligible, err := svc.ListEligibleForDeletion(context.Background())
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, tn1.ID, eligible[0].ID)
}

func TestUserManagement(t *testing.T) {
	svc, _ := newTestService(t, time.Now())
	tn := registerTenant(t, svc)
	_, err := svc.Approve(context.Background(), tn.ID, "admin-1")
	require.NoError(t, err)

	u, err := svc.AddUser(context.Background(), tn.ID, "João", "joao@example.com", RoleCashier)
	require.NoError(t, err)
	assert.Equal(t, RoleCashier, u.Role)
	assert.True(t, u.Active)

	// same email within the store conflicts
	_, err = svc.AddUser(context.Background(), tn.ID, "Outro", "JOAO@example.com", RoleCashier)
	assert.ErrorIs(t, err, ErrUserEmailTaken)

	deactivated, err := svc.DeactivateUser(context.Background(), tn.ID, u.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	reactivated, err := svc.ReactivateUser(context.Background(), tn.ID, u.ID)
	require.NoError(t, err)
	assert.True(t, reactivated.Active)

	// a user can only be managed through its own tenant
	other, err := svc.Register(context.Background(), RegisterInput{
		StoreName:  "Loja Tres",
		OwnerName:  "Pedro",
		OwnerEmail: "pedro@example.com",
		OwnerPhone: "+55 31 96666-0000",
	})
	require.NoError(t, err)
	_, err = svc.DeactivateUser(context.Background(), other.ID, u.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
