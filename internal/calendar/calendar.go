// Package calendar decides whether a monthly billing day falls on a given date.
package calendar

import "time"

// DaysIn returns the number of days in the given month of the Gregorian calendar.
func DaysIn(month time.Month, year int) int {
	// Day 0 of the following month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsBillingDay reports whether today is the billing day for billingDay.
//
// On the first of a month, a billing day that did not exist in the previous
// month (e.g. the 31st after February) is folded onto today.
func IsBillingDay(today time.Time, billingDay int) bool {
	day := today.Day()

	if day == 1 {
		// Month arithmetic through time.Date handles the January rollover.
		prev := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		if billingDay > DaysIn(prev.Month(), prev.Year()) {
			return true
		}
	}

	return billingDay == day
}
