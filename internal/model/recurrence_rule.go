package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RecurrenceRule is a template for tasks generated on a cadence.
type RecurrenceRule struct {
	ID          uint `gorm:"primaryKey"`
	SedeID      uint `gorm:"index:idx_rule_due"`
	ClientRef   string
	PropertyRef string
	ServiceType string
	StartTime   string
	EndTime     string
	Checklist   string
	CostCents   int64
	WorkerID    *uint

	Frequency  string
	Interval   int `gorm:"default:1"`
	DaysOfWeek string // comma-separated 0-6, weekly only
	DayOfMonth int    // 1-31, monthly only

	StartDate     time.Time
	EndDate       *time.Time
	IsActive      bool      `gorm:"not null;index:idx_rule_due"`
	NextExecution time.Time `gorm:"index:idx_rule_due"`
	LastExecution *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Weekdays decodes DaysOfWeek.
func (r RecurrenceRule) Weekdays() ([]int, error) {
	if strings.TrimSpace(r.DaysOfWeek) == "" {
		return nil, nil
	}
	var days []int
	for _, part := range strings.Split(r.DaysOfWeek, ",") {
		day, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("parse weekday %q: %w", part, err)
		}
		days = append(days, day)
	}
	return days, nil
}

// EncodeWeekdays builds the DaysOfWeek column value, sorted and deduplicated.
func EncodeWeekdays(days []int) string {
	seen := make(map[int]bool, len(days))
	var uniq []int
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			uniq = append(uniq, d)
		}
	}
	sort.Ints(uniq)
	parts := make([]string, len(uniq))
	for i, d := range uniq {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// RuleAdvance is the pointer update applied to a rule after an occurrence
// has been materialized.
type RuleAdvance struct {
	LastExecution time.Time
	NextExecution time.Time
	Deactivate    bool
}
