// Package calendar exports worker schedules as iCalendar feeds.
package calendar

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"cleanops/internal/model"
	"cleanops/internal/recurrence"
	"cleanops/internal/schedule"
)

const productID = "-//cleanops//Worker Schedule//EN"

var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("cleanops"))

// Feed is the input of Export. SedeNames labels event locations.
type Feed struct {
	Name      string
	Tasks     []model.Task
	Rules     []model.RecurrenceRule
	SedeNames map[uint]string
	Location  *time.Location
	Now       time.Time
}

// Export renders tasks as single events and active rules as recurring
// events starting at their next execution.
func Export(feed Feed) ([]byte, error) {
	loc := feed.Location
	if loc == nil {
		loc = time.UTC
	}
	stamp := feed.Now
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	if feed.Name != "" {
		cal.Props.SetText(ical.PropName, feed.Name)
	}

	for _, task := range feed.Tasks {
		event, err := taskEvent(task, feed.SedeNames[task.SedeID], loc, stamp)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", task.ID, err)
		}
		cal.Children = append(cal.Children, event.Component)
	}
	for _, rule := range feed.Rules {
		if !rule.IsActive {
			continue
		}
		event, err := ruleEvent(rule, feed.SedeNames[rule.SedeID], loc, stamp)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", rule.ID, err)
		}
		cal.Children = append(cal.Children, event.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func taskEvent(task model.Task, sede string, loc *time.Location, stamp time.Time) (*ical.Event, error) {
	slot, err := schedule.TaskRange(task)
	if err != nil {
		return nil, err
	}
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, eventUID("task", task.ID))
	event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, zoned(at(task.Date, slot.Start, loc)))
	event.Props.SetDateTime(ical.PropDateTimeEnd, zoned(at(task.Date, slot.End, loc)))
	event.Props.SetText(ical.PropSummary, summary(task.PropertyRef, task.ServiceType))
	event.Props.SetText(ical.PropStatus, eventStatus(task.Status))
	describe(event, sede, task.Checklist)
	return event, nil
}

func ruleEvent(rule model.RecurrenceRule, sede string, loc *time.Location, stamp time.Time) (*ical.Event, error) {
	opt, err := RuleOption(rule, loc)
	if err != nil {
		return nil, err
	}
	slot, err := schedule.ParseRange(rule.StartTime + "-" + rule.EndTime)
	if err != nil {
		return nil, err
	}
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, eventUID("rule", rule.ID))
	event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, zoned(opt.Dtstart))
	event.Props.SetDateTime(ical.PropDateTimeEnd, zoned(at(rule.NextExecution, slot.End, loc)))
	event.Props.SetText(ical.PropSummary, summary(rule.PropertyRef, rule.ServiceType))
	event.Props.SetRecurrenceRule(opt)
	describe(event, sede, rule.Checklist)
	return event, nil
}

// RuleOption expresses a stored rule as an RRULE anchored at its next
// execution and start time. Monthly days past 28 select the last existing
// day up to DayOfMonth, matching the clamping of recurrence.Step.
func RuleOption(rule model.RecurrenceRule, loc *time.Location) (*rrule.ROption, error) {
	freq, err := recurrence.ParseFrequency(rule.Frequency)
	if err != nil {
		return nil, err
	}
	start, err := schedule.ParseClock(rule.StartTime)
	if err != nil {
		return nil, err
	}
	interval := rule.Interval
	if interval < 1 {
		return nil, fmt.Errorf("%w: interval must be at least 1, got %d", recurrence.ErrInvalidRule, interval)
	}

	opt := &rrule.ROption{
		Interval: interval,
		Dtstart:  at(rule.NextExecution, start, loc),
	}
	switch freq {
	case recurrence.Daily:
		opt.Freq = rrule.DAILY
	case recurrence.Weekly:
		opt.Freq = rrule.WEEKLY
	case recurrence.Monthly:
		day := rule.DayOfMonth
		if day < 1 || day > 31 {
			return nil, fmt.Errorf("%w: day of month %d out of range 1-31", recurrence.ErrInvalidRule, day)
		}
		opt.Freq = rrule.MONTHLY
		if day <= 28 {
			opt.Bymonthday = []int{day}
		} else {
			for d := 28; d <= day; d++ {
				opt.Bymonthday = append(opt.Bymonthday, d)
			}
			opt.Bysetpos = []int{-1}
		}
	}
	if rule.EndDate != nil {
		opt.Until = at(*rule.EndDate, start, loc)
	}
	return opt, nil
}

// at places a stored UTC date and a time of day in loc.
func at(date time.Time, clock schedule.Clock, loc *time.Location) time.Time {
	y, m, d := model.DateOf(date).Date()
	return time.Date(y, m, d, 0, int(clock), 0, 0, loc)
}

// zoned keeps named zones as TZID and writes the process zone as UTC,
// since "Local" is not a valid TZID.
func zoned(t time.Time) time.Time {
	if t.Location() == time.Local {
		return t.UTC()
	}
	return t
}

func eventUID(kind string, id uint) string {
	return uuid.NewSHA1(uidNamespace, []byte(fmt.Sprintf("%s/%d", kind, id))).String() + "@cleanops"
}

func summary(property, service string) string {
	property = strings.TrimSpace(property)
	if service = strings.TrimSpace(service); service != "" {
		return property + " (" + service + ")"
	}
	return property
}

func describe(event *ical.Event, sede, checklist string) {
	if sede = strings.TrimSpace(sede); sede != "" {
		event.Props.SetText(ical.PropLocation, sede)
	}
	if checklist = strings.TrimSpace(checklist); checklist != "" {
		event.Props.SetText(ical.PropDescription, checklist)
	}
}

func eventStatus(status model.TaskStatus) string {
	if status == model.TaskStatusPending {
		return "TENTATIVE"
	}
	return "CONFIRMED"
}
