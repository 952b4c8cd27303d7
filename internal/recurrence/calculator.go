package recurrence

import "time"

// Step advances from by exactly one cadence of r.
//
// Weekly rules move by whole weeks; DaysOfWeek is not consulted. Monthly rules
// pin the day to DayOfMonth and clamp it to the last day of shorter months,
// so day 31 lands on Apr 30 and Feb 28/29.
func Step(r Rule, from time.Time) time.Time {
	from = Day(from)
	switch r.Frequency {
	case Daily:
		return from.AddDate(0, 0, r.Interval)
	case Weekly:
		return from.AddDate(0, 0, 7*r.Interval)
	case Monthly:
		first := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, from.Location()).AddDate(0, r.Interval, 0)
		day := r.DayOfMonth
		if day == 0 {
			day = from.Day()
		}
		if last := daysInMonth(first.Year(), first.Month()); day > last {
			day = last
		}
		return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, from.Location())
	}
	return from
}

// Next returns the next execution date of r relative to ref.
//
// A start date still ahead of ref is returned as is. Otherwise the rule steps
// from its last execution (or start date) until it lands on or after ref;
// cadences missed in between are skipped rather than backfilled.
func Next(r Rule, ref time.Time) (time.Time, error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, err
	}
	ref = Day(ref)
	start := Day(r.StartDate)
	if start.After(ref) {
		return start, nil
	}

	next := Step(r, r.LastExecution.OrElse(start))
	for next.Before(ref) {
		next = Step(r, next)
	}
	return next, nil
}

// Initial is the first execution date of a freshly created rule.
func Initial(r Rule) (time.Time, error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, err
	}
	return Day(r.StartDate), nil
}

// Upcoming lists up to n occurrences starting at from (inclusive when from is
// already on the cadence), stopping at the end date.
func Upcoming(r Rule, from time.Time, n int) ([]time.Time, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, n)
	for current := Day(from); len(dates) < n; current = Step(r, current) {
		if r.Exhausted(current) {
			break
		}
		dates = append(dates, current)
	}
	return dates, nil
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
