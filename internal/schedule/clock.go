package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidClock is returned for malformed "HH:MM" values.
var ErrInvalidClock = errors.New("invalid time of day")

// Clock is a time of day in minutes since midnight. 24:00 is allowed as an end bound.
type Clock int

const endOfDay Clock = 24 * 60

// ParseClock parses "HH:MM".
func ParseClock(value string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q, expected HH:MM", ErrInvalidClock, value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("%w: bad hour in %q", ErrInvalidClock, value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: bad minute in %q", ErrInvalidClock, value)
	}
	c := Clock(hour*60 + minute)
	if c > endOfDay {
		return 0, fmt.Errorf("%w: %q is past midnight", ErrInvalidClock, value)
	}
	return c, nil
}

// MustClock is ParseClock for constants and tests.
func MustClock(value string) Clock {
	c, err := ParseClock(value)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Range is a half-open [Start, End) interval within a single day.
type Range struct {
	Start Clock
	End   Clock
}

// ParseRange parses "HH:MM-HH:MM" and requires End after Start.
func ParseRange(value string) (Range, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(value), "-")
	if !ok {
		return Range{}, fmt.Errorf("%w: %q, expected HH:MM-HH:MM", ErrInvalidClock, value)
	}
	start, err := ParseClock(left)
	if err != nil {
		return Range{}, err
	}
	end, err := ParseClock(right)
	if err != nil {
		return Range{}, err
	}
	r := Range{Start: start, End: end}
	if !r.Valid() {
		return Range{}, fmt.Errorf("%w: %q ends before it starts", ErrInvalidClock, value)
	}
	return r, nil
}

func (r Range) Valid() bool {
	return r.Start >= 0 && r.End <= endOfDay && r.Start < r.End
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// Contains reports whether other lies within r, bounds inclusive.
func (r Range) Contains(other Range) bool {
	return other.Start >= r.Start && other.End <= r.End
}
