package billing

import "time"

// Escalation thresholds, in whole days past the due date.
const (
	limitAccessAfterDays = 5
	suspendAfterDays     = 10
)

// GenerationDay is the day of month on which next month's charges are cut.
const GenerationDay = 25

// DaysOverdue returns how many whole calendar days now is past due.
// Both instants are normalized to UTC midnight first, so partial days
// never count and DaysOverdue(d, d.AddDate(0,0,k)) == k for any k,
// negative included. Callers treat anything <= 0 as not yet due.
func DaysOverdue(dueDate, now time.Time) int {
	due := midnightUTC(dueDate)
	today := midnightUTC(now)
	return int(today.Sub(due).Hours() / 24)
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// OverdueStatusFor maps days overdue to the charge status and the
// service restriction the tenant should be under.
//
//	0 days        pending, no restriction
//	1 to 4 days   overdue, no restriction
//	5 to 9 days   overdue, limited access
//	10+ days      overdue, suspend
func OverdueStatusFor(daysOverdue int) (ChargeStatus, RestrictionLevel) {
	switch {
	case daysOverdue <= 0:
		return ChargePending, RestrictionNone
	case daysOverdue < limitAccessAfterDays:
		return ChargeOverdue, RestrictionNone
	case daysOverdue < suspendAfterDays:
		return ChargeOverdue, RestrictionLimitAccess
	default:
		return ChargeOverdue, RestrictionSuspend
	}
}

// NextMonthDueDate returns the first day of the month after now, at
// UTC midnight. December rolls over to January of the next year.
func NextMonthDueDate(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// IsGenerationDay reports whether now falls on the monthly generation day.
func IsGenerationDay(now time.Time) bool {
	return now.UTC().Day() == GenerationDay
}
