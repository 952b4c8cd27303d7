package model

import "time"

// DateLayout is used wherever a date-only value is parsed or printed.
const DateLayout = "2006-01-02"

// DateOf returns the calendar date of t (in t's location) as midnight UTC,
// the form every date column is stored in.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a stored date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}
