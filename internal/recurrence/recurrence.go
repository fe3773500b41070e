// Package recurrence computes the next fire time of a reminder.
package recurrence

import (
	"time"

	"github.com/jwalitptl/reminder-api/internal/model"
)

// Next returns the occurrence after current for the given cycle. The second
// result is false for one-shot reminders, including unrecognised cycles.
//
// Calendar fields are taken in current's location, so callers that care
// about the local day boundary should convert first.
func Next(current time.Time, cycle model.CycleType) (time.Time, bool) {
	switch cycle {
	case model.CycleWeekly:
		return current.Add(7 * 24 * time.Hour), true
	case model.CycleMonthly:
		return AddMonths(current, 1), true
	case model.CycleYearly:
		return AddYears(current, 1), true
	default:
		return time.Time{}, false
	}
}

// AddMonths moves t forward by n calendar months, keeping the time of day.
// A day-of-month that does not exist in the target month is clamped to the
// last day of that month instead of rolling over.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + n
	y += floorDiv(total, 12)
	month := time.Month(total - floorDiv(total, 12)*12 + 1)

	if last := DaysIn(month, y); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(y, month, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// AddYears is AddMonths(t, 12*n); Feb 29 lands on Feb 28 in common years.
func AddYears(t time.Time, n int) time.Time {
	return AddMonths(t, 12*n)
}

func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysIn returns the number of days in month of year.
func DaysIn(month time.Month, year int) int {
	switch month {
	case time.February:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
