// Package recurrence computes occurrence dates for recurring cleaning rules.
// Everything here is pure date arithmetic on date-only values.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"
)

// ErrInvalidRule wraps every validation failure.
var ErrInvalidRule = errors.New("invalid recurrence rule")

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// ParseFrequency accepts the three supported frequencies, case-sensitively.
func ParseFrequency(value string) (Frequency, error) {
	switch f := Frequency(value); f {
	case Daily, Weekly, Monthly:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, value)
}

// Rule is the cadence part of a recurrence rule.
type Rule struct {
	Frequency     Frequency
	Interval      int
	DaysOfWeek    []int // stored for weekly rules, not used for stepping
	DayOfMonth    int   // 0 when unset
	StartDate     time.Time
	EndDate       mo.Option[time.Time]
	LastExecution mo.Option[time.Time]
}

// Validate rejects rules the calculator cannot step.
func (r Rule) Validate() error {
	if _, err := ParseFrequency(string(r.Frequency)); err != nil {
		return err
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1, got %d", ErrInvalidRule, r.Interval)
	}
	if r.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidRule)
	}
	if end, ok := r.EndDate.Get(); ok && Day(end).Before(Day(r.StartDate)) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidRule,
			end.Format(time.DateOnly), r.StartDate.Format(time.DateOnly))
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: weekday %d out of range 0-6", ErrInvalidRule, d)
		}
	}
	if r.Frequency == Monthly && r.DayOfMonth == 0 {
		return fmt.Errorf("%w: monthly rule needs a day of month", ErrInvalidRule)
	}
	if r.DayOfMonth < 0 || r.DayOfMonth > 31 {
		return fmt.Errorf("%w: day of month %d out of range 1-31", ErrInvalidRule, r.DayOfMonth)
	}
	return nil
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Exhausted reports whether date lies past the rule's end date.
func (r Rule) Exhausted(date time.Time) bool {
	end, ok := r.EndDate.Get()
	return ok && Day(date).After(Day(end))
}

// Option converts a nullable column into an Option.
func Option(t *time.Time) mo.Option[time.Time] {
	if t == nil {
		return mo.None[time.Time]()
	}
	return mo.Some(*t)
}
