//go:build integration

package tenant

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojix/lojix/internal/idgen"
)

func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("connect to database: %v", err)
	}

	store := NewPostgresStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		_, _ = db.Exec(`DELETE FROM store_users`)
		_, _ = db.Exec(`DELETE FROM charges`)
		_, _ = db.Exec(`DELETE FROM tenants`)
		_ = db.Close()
	}
	return store, cleanup
}

func newPostgresTenant() *Tenant {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Tenant{
		ID:           idgen.WithPrefix("ten_"),
		StoreName:    "Loja Integra",
		OwnerName:    "Dona Integra",
		OwnerEmail:   idgen.Hex(8) + "@example.com",
		OwnerPhone:   "+55 11 90000-0000",
		Status:       StatusPending,
		MonthlyPrice: decimal.RequireFromString("99.90"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPostgresStoreTenantRoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	tn := newPostgresTenant()
	require.NoError(t, store.Create(context.Background(), tn))

	got, err := store.Get(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tn.StoreName, got.StoreName)
	assert.Equal(t, StatusPending, got.Status)
	assert.True(t, got.MonthlyPrice.Equal(tn.MonthlyPrice))
	// trial window comes from the storage default
	assert.False(t, got.TrialEndsAt.IsZero())

	// lookup is case-insensitive
	byEmail, err := store.GetByOwnerEmail(context.Background(), strings.ToUpper(got.OwnerEmail))
	require.NoError(t, err)
	assert.Equal(t, tn.ID, byEmail.ID)

	_, err = store.Get(context.Background(), "ten_missing")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestPostgresStoreDuplicateOwnerEmail(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	tn := newPostgresTenant()
	require.NoError(t, store.Create(context.Background(), tn))

	dup := newPostgresTenant()
	dup.OwnerEmail = tn.OwnerEmail
	assert.ErrorIs(t, store.Create(context.Background(), dup), ErrOwnerEmailTaken)
}

func TestPostgresStoreUpdateStatusIf(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	tn := newPostgresTenant()
	tn.Status = StatusActive
	require.NoError(t, store.Create(context.Background(), tn))

	ok, err := store.UpdateStatusIf(context.Background(), tn.ID, StatusActive, StatusSuspended)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UpdateStatusIf(context.Background(), tn.ID, StatusActive, StatusSuspended)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Get(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, got.Status)
}

func TestPostgresStoreUsers(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	tn := newPostgresTenant()
	require.NoError(t, store.Create(context.Background(), tn))

	now := time.Now().UTC().Truncate(time.Microsecond)
	u := &StoreUser{
		ID:        idgen.WithPrefix("usr_"),
		TenantID:  tn.ID,
		Name:      "Equipe",
		Email:     idgen.Hex(8) + "@example.com",
		Role:      RoleCashier,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateUser(context.Background(), u))

	got, err := store.GetUserByEmail(context.Background(), u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got.Active = false
	require.NoError(t, store.UpdateUser(context.Background(), got))

	again, err := store.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.False(t, again.Active)

	users, err := store.ListUsers(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
