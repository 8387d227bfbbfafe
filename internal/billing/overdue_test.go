package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysOverdue(t *testing.T) {
	due := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysOverdue(due, due))

	// exact day arithmetic holds both sides of the due date
	for k := -15; k <= 15; k++ {
		assert.Equal(t, k, DaysOverdue(due, due.AddDate(0, 0, k)), "k=%d", k)
	}

	// partial days never count
	lateEvening := time.Date(2026, 2, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysOverdue(due, lateEvening))
	assert.Equal(t, 1, DaysOverdue(due, time.Date(2026, 2, 2, 0, 1, 0, 0, time.UTC)))

	// non-UTC instants normalize to the same calendar day
	saoPaulo := time.FixedZone("BRT", -3*3600)
	assert.Equal(t, 3, DaysOverdue(due, time.Date(2026, 2, 4, 22, 0, 0, 0, saoPaulo)))
}

func TestOverdueStatusFor(t *testing.T) {
	cases := []struct {
		days        int
		status      ChargeStatus
		restriction RestrictionLevel
	}{
		{-1, ChargePending, RestrictionNone},
		{0, ChargePending, RestrictionNone},
		{1, ChargeOverdue, RestrictionNone},
		{4, ChargeOverdue, RestrictionNone},
		{5, ChargeOverdue, RestrictionLimitAccess},
		{9, ChargeOverdue, RestrictionLimitAccess},
		{10, ChargeOverdue, RestrictionSuspend},
		{30, ChargeOverdue, RestrictionSuspend},
	}
	for _, tc := range cases {
		status, restriction := OverdueStatusFor(tc.days)
		assert.Equal(t, tc.status, status, "days=%d", tc.days)
		assert.Equal(t, tc.restriction, restriction, "days=%d", tc.days)
	}
}

func TestOverdueSeverityNeverDecreases(t *testing.T) {
	prev := 0
	for days := 0; days <= 40; days++ {
		_, r := OverdueStatusFor(days)
		assert.GreaterOrEqual(t, severity(r), prev, "days=%d", days)
		prev = severity(r)
	}
}

func TestNextMonthDueDate(t *testing.T) {
	assert.Equal(t,
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		NextMonthDueDate(time.Date(2026, 1, 25, 3, 0, 0, 0, time.UTC)))

	// year rollover
	assert.Equal(t,
		time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		NextMonthDueDate(time.Date(2026, 12, 25, 3, 0, 0, 0, time.UTC)))
}

func TestIsGenerationDay(t *testing.T) {
	assert.True(t, IsGenerationDay(time.Date(2026, 1, 25, 3, 0, 0, 0, time.UTC)))
	assert.False(t, IsGenerationDay(time.Date(2026, 1, 24, 3, 0, 0, 0, time.UTC)))
	assert.False(t, IsGenerationDay(time.Date(2026, 1, 26, 3, 0, 0, 0, time.UTC)))
}
