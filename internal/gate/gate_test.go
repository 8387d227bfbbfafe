package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojix/lojix/internal/idgen"
	"github.com/lojix/lojix/internal/tenant"
)

func seedStore(t *testing.T, status tenant.Status, userActive bool) (*tenant.MemoryStore, *tenant.Tenant, *tenant.StoreUser) {
	t.Helper()
	store := tenant.NewMemoryStore()

	tn := &tenant.Tenant{
		ID:         idgen.WithPrefix("ten_"),
		StoreName:  "Loja Gate",
		OwnerEmail: "owner@example.com",
		Status:     status,
	}
	require.NoError(t, store.Create(context.Background(), tn))

	u := &tenant.StoreUser{
		ID:       idgen.WithPrefix("usr_"),
		TenantID: tn.ID,
		Name:     "Maria",
		Email:    "maria@example.com",
		Role:     tenant.RoleCashier,
		Active:   userActive,
	}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return store, tn, u
}

func assertDenied(t *testing.T, err error, want DenialCode) {
	t.Helper()
	require.Error(t, err)
	code, ok := Denial(err)
	require.True(t, ok, "expected a denial, got %v", err)
	assert.Equal(t, want, code)
}

func TestResolveActiveTenant(t *testing.T) {
	store, tn, u := seedStore(t, tenant.StatusActive, true)
	r := NewResolver(store, nil)

	gctx, err := r.Resolve(context.Background(), "maria@example.com")
	require.NoError(t, err)
	assert.Equal(t, tn.ID, gctx.TenantID)
	assert.Equal(t, u.ID, gctx.User.ID)
	assert.False(t, gctx.SuperAdmin)
}

func TestResolveDenials(t *testing.T) {
	t.Run("no principal", func(t *testing.T) {
		store, _, _ := seedStore(t, tenant.StatusActive, true)
		r := NewResolver(store, nil)
		_, err := r.Resolve(context.Background(), "")
		assertDenied(t, err, NotAuthenticated)
	})

	t.Run("unknown user", func(t *testing.T) {
		store, _, _ := seedStore(t, tenant.StatusActive, true)
		r := NewResolver(store, nil)
		_, err := r.Resolve(context.Background(), "nobody@example.com")
		assertDenied(t, err, UserNotFound)
	})

	t.Run("deactivated user", func(t *testing.T) {
		store, _, _ := seedStore(t, tenant.StatusActive, false)
		r := NewResolver(store, nil)
		_, err := r.Resolve(context.Background(), "maria@example.com")
		assertDenied(t, err, UserDeactivated)
	})

	t.Run("pending tenant", func(t *testing.T) {
		store, _, _ := seedStore(t, tenant.StatusPending, true)
		r := NewResolver(store, nil)
		_, err := r.Resolve(context.Background(), "maria@example.com")
		assertDenied(t, err, TenantPending)
	})

	t.Run("suspended tenant", func(t *testing.T) {
		store, _, _ := seedStore(t, tenant.StatusSuspended, true)
		r := NewResolver(store, nil)
		_, err := r.Resolve(context.Background(), "maria@example.com")
		assertDenied(t, err, TenantSuspended)
	})

	t.Run("cancelled tenant", func(t *testing.T) {
		store, _, _ := seedStore(t, tenant.StatusCancelled, true)
		r := NewResolver(store, nil)
		_, err := r.Resolve(context.Background(), "maria@example.com")
		assertDenied(t, err, TenantCancelled)
	})
}

func TestResolveSuperAdminBypassesTenantChecks(t *testing.T) {
	store, _, _ := seedStore(t, tenant.StatusSuspended, true)
	r := NewResolver(store, []string{"Admin@Example.com"})

	gctx, err := r.Resolve(context.Background(), "admin@example.com")
	require.NoError(t, err)
	assert.True(t, gctx.SuperAdmin)
	assert.Empty(t, gctx.TenantID)
}

type ownedRecord struct{ tenantID string }

func (r *ownedRecord) OwnerTenantID() string { return r.tenantID }

func TestValidateRecordOwnership(t *testing.T) {
	a := &ownedRecord{tenantID: "ten_a"}
	b := &ownedRecord{tenantID: "ten_b"}

	// symmetry: each record validates only under its own tenant
	assert.NoError(t, ValidateRecordOwnership(a, "ten_a"))
	assert.ErrorIs(t, ValidateRecordOwnership(a, "ten_b"), ErrAccessDenied)
	assert.NoError(t, ValidateRecordOwnership(b, "ten_b"))
	assert.ErrorIs(t, ValidateRecordOwnership(b, "ten_a"), ErrAccessDenied)

	// a missing record answers exactly like a foreign one
	assert.ErrorIs(t, ValidateRecordOwnership(nil, "ten_a"), ErrAccessDenied)
	assert.ErrorIs(t, ValidateRecordOwnership(a, ""), ErrAccessDenied)
}
