package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cleanops/internal/model"
	"cleanops/internal/recurrence"
	"cleanops/internal/repository"
	"cleanops/internal/schedule"
)

// ErrRuleFinished is returned when resuming a rule whose end date has passed.
var ErrRuleFinished = errors.New("rule has no occurrences left")

// RuleInput represents data required to create a recurrence rule.
type RuleInput struct {
	PropertyRef string
	ClientRef   string
	ServiceType string
	Checklist   string
	CostCents   int64
	Slot        schedule.Range
	WorkerID    *uint

	Frequency  string
	Interval   int
	DaysOfWeek []int
	DayOfMonth int
	StartDate  time.Time
	EndDate    *time.Time
}

// RuleService manages recurrence rules of a sede.
type RuleService struct {
	ruleRepo *repository.RuleRepository
}

func NewRuleService(ruleRepo *repository.RuleRepository) *RuleService {
	return &RuleService{ruleRepo: ruleRepo}
}

// CreateRule validates input and stores a rule whose first execution is its start date.
func (s *RuleService) CreateRule(ctx context.Context, sedeID uint, input RuleInput) (*model.RecurrenceRule, error) {
	if strings.TrimSpace(input.PropertyRef) == "" {
		return nil, fmt.Errorf("property is required")
	}
	if !input.Slot.Valid() {
		return nil, fmt.Errorf("%w: %s", schedule.ErrInvalidClock, input.Slot)
	}
	if input.Interval == 0 {
		input.Interval = 1
	}

	rule := model.RecurrenceRule{
		SedeID:      sedeID,
		ClientRef:   strings.TrimSpace(input.ClientRef),
		PropertyRef: strings.TrimSpace(input.PropertyRef),
		ServiceType: strings.TrimSpace(input.ServiceType),
		StartTime:   input.Slot.Start.String(),
		EndTime:     input.Slot.End.String(),
		Checklist:   strings.TrimSpace(input.Checklist),
		CostCents:   input.CostCents,
		WorkerID:    input.WorkerID,
		Frequency:   strings.ToLower(strings.TrimSpace(input.Frequency)),
		Interval:    input.Interval,
		DaysOfWeek:  model.EncodeWeekdays(input.DaysOfWeek),
		DayOfMonth:  input.DayOfMonth,
		StartDate:   model.DateOf(input.StartDate),
		EndDate:     utcDate(input.EndDate),
		IsActive:    true,
	}

	spec, err := RecurrenceOf(rule)
	if err != nil {
		return nil, err
	}
	first, err := recurrence.Initial(spec)
	if err != nil {
		return nil, err
	}
	rule.NextExecution = first

	if err := s.ruleRepo.Create(ctx, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *RuleService) ListRules(ctx context.Context, sedeID uint) ([]model.RecurrenceRule, error) {
	return s.ruleRepo.ListBySede(ctx, sedeID)
}

func (s *RuleService) GetRule(ctx context.Context, sedeID, ruleID uint) (*model.RecurrenceRule, error) {
	return s.ruleRepo.FindByID(ctx, sedeID, ruleID)
}

// PauseRule stops materialization without touching the execution pointers.
func (s *RuleService) PauseRule(ctx context.Context, sedeID, ruleID uint) error {
	return s.ruleRepo.UpdateRule(ctx, sedeID, ruleID, map[string]interface{}{"is_active": false})
}

// ResumeRule reactivates a rule. A pointer left in the past jumps to the
// first occurrence on or after today instead of producing a stale task.
func (s *RuleService) ResumeRule(ctx context.Context, sedeID, ruleID uint, today time.Time) (*model.RecurrenceRule, error) {
	rule, err := s.ruleRepo.FindByID(ctx, sedeID, ruleID)
	if err != nil {
		return nil, err
	}
	spec, err := RecurrenceOf(*rule)
	if err != nil {
		return nil, err
	}

	today = model.DateOf(today)
	next := model.DateOf(rule.NextExecution)
	if next.Before(today) {
		next, err = recurrence.Next(spec, today)
		if err != nil {
			return nil, err
		}
	}
	if spec.Exhausted(next) {
		return nil, ErrRuleFinished
	}

	fields := map[string]interface{}{"is_active": true, "next_execution": next}
	if err := s.ruleRepo.UpdateRule(ctx, sedeID, ruleID, fields); err != nil {
		return nil, err
	}
	rule.IsActive = true
	rule.NextExecution = next
	return rule, nil
}

// PreviewRule lists up to n upcoming occurrences starting at the rule's next execution.
func (s *RuleService) PreviewRule(ctx context.Context, sedeID, ruleID uint, n int) ([]time.Time, error) {
	rule, err := s.ruleRepo.FindByID(ctx, sedeID, ruleID)
	if err != nil {
		return nil, err
	}
	spec, err := RecurrenceOf(*rule)
	if err != nil {
		return nil, err
	}
	return recurrence.Upcoming(spec, model.DateOf(rule.NextExecution), n)
}

// WorkerRules lists active rules whose template assigns workerID.
func (s *RuleService) WorkerRules(ctx context.Context, workerID uint) ([]model.RecurrenceRule, error) {
	return s.ruleRepo.ListActiveForWorker(ctx, workerID)
}
