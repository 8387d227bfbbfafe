package schedule

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojix/lojix/internal/billing"
	"github.com/lojix/lojix/internal/idgen"
	"github.com/lojix/lojix/internal/tenant"
)

func newScheduler(t *testing.T, now time.Time) (*Scheduler, *billing.MemoryStore) {
	t.Helper()
	charges := billing.NewMemoryStore()
	tenants := tenant.NewMemoryStore()

	tn := &tenant.Tenant{
		ID:           idgen.WithPrefix("ten_"),
		StoreName:    "Loja Agenda",
		OwnerEmail:   "agenda@example.com",
		Status:       tenant.StatusActive,
		MonthlyPrice: decimal.RequireFromString("99.90"),
	}
	require.NoError(t, tenants.Create(context.Background(), tn))

	svc := billing.NewService(charges, tenants, slog.Default(),
		billing.WithNow(func() time.Time { return now }))
	return New(svc, slog.Default(), WithNow(func() time.Time { return now })), charges
}

func TestRunGenerationOnGenerationDay(t *testing.T) {
	now := time.Date(2026, 1, 25, 3, 0, 0, 0, time.UTC)
	s, charges := newScheduler(t, now)

	s.RunGeneration(context.Background())

	open, err := charges.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestRunGenerationSkipsOtherDays(t *testing.T) {
	now := time.Date(2026, 1, 24, 3, 0, 0, 0, time.UTC)
	s, charges := newScheduler(t, now)

	s.RunGeneration(context.Background())

	open, err := charges.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSafeRunRecoversPanic(t *testing.T) {
	s, _ := newScheduler(t, time.Now())

	assert.NotPanics(t, func() {
		s.safeRun("exploding", func(context.Context) {
			panic("boom")
		})
	})
}
