package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cleanops/internal/model"
	"cleanops/internal/recurrence"
)

// RuleError is the failure of a single rule during materialization.
type RuleError struct {
	RuleID uint
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %d: %v", e.RuleID, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// MaterializeResult summarizes one MaterializeDue call.
type MaterializeResult struct {
	Created     []model.Task
	Deactivated []uint
	Failed      []uint
}

// Materializer turns due recurrence rules into tasks.
type Materializer struct {
	rules RuleStore
	log   *zap.Logger
}

func NewMaterializer(rules RuleStore, log *zap.Logger) *Materializer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Materializer{rules: rules, log: log}
}

// MaterializeDue creates one task for each due rule of the sede and advances
// the rule. A failing rule is left unadvanced and reported in the joined
// error; the remaining rules are still processed.
func (m *Materializer) MaterializeDue(ctx context.Context, sedeID uint, today time.Time) (MaterializeResult, error) {
	var result MaterializeResult
	today = model.DateOf(today)

	rules, err := m.rules.DueRules(ctx, sedeID, today)
	if err != nil {
		return result, err
	}

	var errs []error
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		log := m.log.With(zap.Uint("sede_id", sedeID), zap.Uint("rule_id", rule.ID))
		plan, err := PlanOccurrence(rule, today)
		if err != nil {
			log.Warn("skip invalid rule", zap.Error(err))
			result.Failed = append(result.Failed, rule.ID)
			errs = append(errs, &RuleError{RuleID: rule.ID, Err: err})
			continue
		}

		if plan.Task == nil {
			if err := m.rules.UpdateRule(ctx, sedeID, rule.ID, map[string]interface{}{"is_active": false}); err != nil {
				log.Error("deactivate exhausted rule", zap.Error(err))
				result.Failed = append(result.Failed, rule.ID)
				errs = append(errs, &RuleError{RuleID: rule.ID, Err: err})
				continue
			}
			log.Info("rule exhausted", zap.Time("end_date", *rule.EndDate))
			result.Deactivated = append(result.Deactivated, rule.ID)
			continue
		}

		if err := m.rules.CommitOccurrence(ctx, sedeID, plan.Task, rule.ID, plan.Advance); err != nil {
			log.Error("materialize rule", zap.Error(err))
			result.Failed = append(result.Failed, rule.ID)
			errs = append(errs, &RuleError{RuleID: rule.ID, Err: err})
			continue
		}

		log.Info("task materialized",
			zap.Uint("task_id", plan.Task.ID),
			zap.String("date", plan.Task.Date.Format(model.DateLayout)),
			zap.String("next_execution", plan.Advance.NextExecution.Format(model.DateLayout)))
		result.Created = append(result.Created, *plan.Task)
		if plan.Advance.Deactivate {
			result.Deactivated = append(result.Deactivated, rule.ID)
		}
	}

	return result, errors.Join(errs...)
}

// OccurrencePlan is what materializing a due rule would write. Task is nil
// when the rule is past its end date and should only be deactivated.
type OccurrencePlan struct {
	Task    *model.Task
	Advance model.RuleAdvance
}

// PlanOccurrence builds the task and pointer advance for a due rule without
// touching storage.
func PlanOccurrence(rule model.RecurrenceRule, today time.Time) (OccurrencePlan, error) {
	spec, err := RecurrenceOf(rule)
	if err != nil {
		return OccurrencePlan{}, err
	}
	if err := spec.Validate(); err != nil {
		return OccurrencePlan{}, err
	}

	due := model.DateOf(rule.NextExecution)
	if spec.Exhausted(due) {
		return OccurrencePlan{}, nil
	}

	spec.LastExecution = recurrence.Option(&due)
	next, err := recurrence.Next(spec, model.DateOf(today))
	if err != nil {
		return OccurrencePlan{}, err
	}

	ruleID := rule.ID
	task := &model.Task{
		SedeID:      rule.SedeID,
		Date:        due,
		StartTime:   rule.StartTime,
		EndTime:     rule.EndTime,
		WorkerID:    rule.WorkerID,
		Status:      model.TaskStatusPending,
		PropertyRef: rule.PropertyRef,
		ClientRef:   rule.ClientRef,
		ServiceType: rule.ServiceType,
		Checklist:   rule.Checklist,
		CostCents:   rule.CostCents,
		RuleID:      &ruleID,
	}
	return OccurrencePlan{
		Task: task,
		Advance: model.RuleAdvance{
			LastExecution: due,
			NextExecution: next,
			Deactivate:    spec.Exhausted(next),
		},
	}, nil
}

// RecurrenceOf converts a stored rule into the calculator's form.
func RecurrenceOf(rule model.RecurrenceRule) (recurrence.Rule, error) {
	freq, err := recurrence.ParseFrequency(rule.Frequency)
	if err != nil {
		return recurrence.Rule{}, err
	}
	days, err := rule.Weekdays()
	if err != nil {
		return recurrence.Rule{}, fmt.Errorf("%w: %v", recurrence.ErrInvalidRule, err)
	}
	return recurrence.Rule{
		Frequency:     freq,
		Interval:      rule.Interval,
		DaysOfWeek:    days,
		DayOfMonth:    rule.DayOfMonth,
		StartDate:     model.DateOf(rule.StartDate),
		EndDate:       recurrence.Option(utcDate(rule.EndDate)),
		LastExecution: recurrence.Option(utcDate(rule.LastExecution)),
	}, nil
}

func utcDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := model.DateOf(*t)
	return &d
}
