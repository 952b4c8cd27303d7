package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cleanops/internal/model"
	"cleanops/internal/schedule"
	"cleanops/internal/service"
)

var errUsage = errors.New("wrong arguments")

func parseID(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("%q is not an id", raw)
	}
	return uint(value), nil
}

// parseDay accepts "", "today", "tomorrow" or YYYY-MM-DD.
func parseDay(raw string, today time.Time) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "today":
		return model.DateOf(today), nil
	case "tomorrow":
		return model.DateOf(today).AddDate(0, 0, 1), nil
	}
	d, err := model.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a date, use YYYY-MM-DD", raw)
	}
	return d, nil
}

// parseAssignArgs parses "<taskID> <workerID> <date> <HH:MM-HH:MM>".
func parseAssignArgs(args string, today time.Time) (service.Candidate, error) {
	fields := strings.Fields(args)
	if len(fields) != 4 {
		return service.Candidate{}, errUsage
	}
	taskID, err := parseID(fields[0])
	if err != nil {
		return service.Candidate{}, err
	}
	workerID, err := parseID(fields[1])
	if err != nil {
		return service.Candidate{}, err
	}
	date, err := parseDay(fields[2], today)
	if err != nil {
		return service.Candidate{}, err
	}
	slot, err := schedule.ParseRange(fields[3])
	if err != nil {
		return service.Candidate{}, err
	}
	return service.Candidate{TaskID: taskID, WorkerID: workerID, Date: date, Slot: slot}, nil
}

// parseRuleArgs parses
// "<property> <daily|weekly|monthly> <start> <HH:MM-HH:MM> [key=value ...]"
// with keys every, days, day, until, worker, service, client, cost, checklist.
// Values use "_" for spaces.
func parseRuleArgs(args string, today time.Time) (service.RuleInput, error) {
	fields := strings.Fields(args)
	if len(fields) < 4 {
		return service.RuleInput{}, errUsage
	}

	start, err := parseDay(fields[2], today)
	if err != nil {
		return service.RuleInput{}, err
	}
	slot, err := schedule.ParseRange(fields[3])
	if err != nil {
		return service.RuleInput{}, err
	}
	input := service.RuleInput{
		PropertyRef: unspace(fields[0]),
		Frequency:   strings.ToLower(fields[1]),
		Interval:    1,
		StartDate:   start,
		Slot:        slot,
	}

	for _, option := range fields[4:] {
		key, value, ok := strings.Cut(option, "=")
		if !ok || value == "" {
			return service.RuleInput{}, fmt.Errorf("option %q must look like key=value", option)
		}
		switch strings.ToLower(key) {
		case "every":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return service.RuleInput{}, fmt.Errorf("every must be a positive number")
			}
			input.Interval = n
		case "days":
			days, err := parseWeekdays(value)
			if err != nil {
				return service.RuleInput{}, err
			}
			input.DaysOfWeek = days
		case "day":
			n, err := strconv.Atoi(value)
			if err != nil {
				return service.RuleInput{}, fmt.Errorf("day must be a number 1-31")
			}
			input.DayOfMonth = n
		case "until":
			end, err := parseDay(value, today)
			if err != nil {
				return service.RuleInput{}, err
			}
			input.EndDate = &end
		case "worker":
			id, err := parseID(value)
			if err != nil {
				return service.RuleInput{}, err
			}
			input.WorkerID = &id
		case "service":
			input.ServiceType = unspace(value)
		case "client":
			input.ClientRef = unspace(value)
		case "checklist":
			input.Checklist = unspace(value)
		case "cost":
			cents, err := parseCost(value)
			if err != nil {
				return service.RuleInput{}, err
			}
			input.CostCents = cents
		default:
			return service.RuleInput{}, fmt.Errorf("unknown option %q", key)
		}
	}

	if input.Frequency == "monthly" && input.DayOfMonth == 0 {
		input.DayOfMonth = start.Day()
	}
	return input, nil
}

// parseWeekdays accepts "1,3,5" (0=Sunday) or short names "mon,wed".
func parseWeekdays(raw string) ([]int, error) {
	names := map[string]int{"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6}
	var days []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if d, ok := names[part]; ok {
			days = append(days, d)
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 || d > 6 {
			return nil, fmt.Errorf("weekday %q must be 0-6 or mon..sun", part)
		}
		days = append(days, d)
	}
	return days, nil
}

// parseSetAvailArgs parses "<workerID> <weekday> <off|all|HH:MM-HH:MM>".
func parseSetAvailArgs(args string) (uint, time.Weekday, string, error) {
	fields := strings.Fields(args)
	if len(fields) != 3 {
		return 0, 0, "", errUsage
	}
	workerID, err := parseID(fields[0])
	if err != nil {
		return 0, 0, "", err
	}
	days, err := parseWeekdays(fields[1])
	if err != nil {
		return 0, 0, "", err
	}
	if len(days) != 1 {
		return 0, 0, "", fmt.Errorf("give a single weekday")
	}
	return workerID, time.Weekday(days[0]), fields[2], nil
}

// parseCost turns "45", "45.5" or "45.50" into cents.
func parseCost(raw string) (int64, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(raw), ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 || len(frac) > 2 {
		return 0, fmt.Errorf("cost %q must look like 45.50", raw)
	}
	cents := int64(0)
	if frac != "" {
		for len(frac) < 2 {
			frac += "0"
		}
		c, err := strconv.ParseInt(frac, 10, 64)
		if err != nil || c < 0 {
			return 0, fmt.Errorf("cost %q must look like 45.50", raw)
		}
		cents = c
	}
	return units*100 + cents, nil
}

func formatCost(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func unspace(value string) string {
	return strings.TrimSpace(strings.ReplaceAll(value, "_", " "))
}
