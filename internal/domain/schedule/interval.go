// Package schedule holds calendar arithmetic for recurring billing.
package schedule

import (
	"time"

	"ledgerd/internal/core/apperror"
)

// Interval is a billing recurrence.
type Interval string

const (
	Monthly   Interval = "MONTHLY"
	Quarterly Interval = "QUARTERLY"
	Yearly    Interval = "YEARLY"
)

// months is the number of calendar months per interval.
var months = map[Interval]int{
	Monthly:   1,
	Quarterly: 3,
	Yearly:    12,
}

// IsValid reports whether i is a known interval.
func (i Interval) IsValid() bool {
	_, ok := months[i]
	return ok
}

// Parse validates a raw interval value.
func Parse(s string) (Interval, error) {
	i := Interval(s)
	if !i.IsValid() {
		return "", apperror.NewFieldValidation("interval", "interval must be MONTHLY, QUARTERLY or YEARLY").
			WithDetail("value", s)
	}
	return i, nil
}

// Advance moves date forward by one interval. The day of month is clamped to
// the last day of the target month, so 2025-01-31 + 1 month is 2025-02-28 and
// 2024-02-29 + 1 year is 2025-02-28. Time of day and location are kept.
func Advance(date time.Time, interval Interval) time.Time {
	n, ok := months[interval]
	if !ok {
		return date
	}
	return AddMonths(date, n)
}

// AddMonths adds n calendar months with end-of-month clamping.
func AddMonths(date time.Time, n int) time.Time {
	y, m, d := date.Date()
	total := int(m) - 1 + n
	ty := y + total/12
	tm := total % 12
	if tm < 0 {
		tm += 12
		ty--
	}
	target := time.Month(tm + 1)
	if last := daysIn(ty, target, date.Location()); d > last {
		d = last
	}
	hh, mm, ss := date.Clock()
	return time.Date(ty, target, d, hh, mm, ss, date.Nanosecond(), date.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// PeriodEnd is the last day covered by a period starting at start: advance(start) − 1 day.
func PeriodEnd(start time.Time, interval Interval) time.Time {
	return Advance(start, interval).AddDate(0, 0, -1)
}
