package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"cleanops/internal/model"
	"cleanops/internal/recurrence"
)

func mustDate(value string) time.Time {
	d, err := model.ParseDate(value)
	if err != nil {
		panic(err)
	}
	return d
}

func dailyRule(id uint, start, next string) model.RecurrenceRule {
	return model.RecurrenceRule{
		ID:            id,
		SedeID:        sedeNorth,
		ClientRef:     "client-9",
		PropertyRef:   "villa-12",
		ServiceType:   "turnover",
		StartTime:     "10:00",
		EndTime:       "12:00",
		Checklist:     "linen,towels",
		CostCents:     4500,
		WorkerID:      uintPtr(workerW),
		Frequency:     "daily",
		Interval:      1,
		StartDate:     mustDate(start),
		IsActive:      true,
		NextExecution: mustDate(next),
	}
}

func TestMaterializeDueCopiesTemplateAndAdvances(t *testing.T) {
	rule := dailyRule(1, "2024-01-01", "2024-01-15")
	rule.Frequency = "weekly"
	rule.Interval = 2
	rule.DaysOfWeek = "1"
	rule.LastExecution = timePtr(mustDate("2024-01-01"))
	rules := newFakeRuleStore(rule)
	m := NewMaterializer(rules, zaptest.NewLogger(t))

	result, err := m.MaterializeDue(context.Background(), sedeNorth, mustDate("2024-01-15"))
	require.NoError(t, err)
	require.Len(t, result.Created, 1)

	task := result.Created[0]
	assert.Equal(t, mustDate("2024-01-15"), task.Date)
	assert.Equal(t, model.TaskStatusPending, task.Status)
	assert.Equal(t, "villa-12", task.PropertyRef)
	assert.Equal(t, "client-9", task.ClientRef)
	assert.Equal(t, "turnover", task.ServiceType)
	assert.Equal(t, "10:00", task.StartTime)
	assert.Equal(t, "12:00", task.EndTime)
	assert.Equal(t, "linen,towels", task.Checklist)
	assert.Equal(t, int64(4500), task.CostCents)
	assert.True(t, task.AssignedTo(workerW))
	require.NotNil(t, task.RuleID)
	assert.Equal(t, uint(1), *task.RuleID)

	stored := rules.rule(1)
	assert.Equal(t, mustDate("2024-01-29"), stored.NextExecution)
	require.NotNil(t, stored.LastExecution)
	assert.Equal(t, mustDate("2024-01-15"), *stored.LastExecution)
	assert.True(t, stored.IsActive)
}

func TestMaterializeDueIsIdempotentWithinADay(t *testing.T) {
	rules := newFakeRuleStore(dailyRule(1, "2024-01-01", "2024-01-15"))
	m := NewMaterializer(rules, zaptest.NewLogger(t))
	today := mustDate("2024-01-15")

	first, err := m.MaterializeDue(context.Background(), sedeNorth, today)
	require.NoError(t, err)
	assert.Len(t, first.Created, 1)

	second, err := m.MaterializeDue(context.Background(), sedeNorth, today)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Len(t, rules.tasks, 1)
}

func TestMaterializeDueCatchUpCreatesOneTask(t *testing.T) {
	rules := newFakeRuleStore(dailyRule(1, "2024-01-01", "2024-01-10"))
	m := NewMaterializer(rules, zaptest.NewLogger(t))

	result, err := m.MaterializeDue(context.Background(), sedeNorth, mustDate("2024-01-15"))
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, mustDate("2024-01-10"), result.Created[0].Date)
	assert.Equal(t, mustDate("2024-01-15"), rules.rule(1).NextExecution)
}

func TestMaterializeDueCatchUpKeepsTodaysOccurrence(t *testing.T) {
	rules := newFakeRuleStore(dailyRule(1, "2024-01-01", "2024-01-14"))
	m := NewMaterializer(rules, zaptest.NewLogger(t))
	today := mustDate("2024-01-15")

	var dates []time.Time
	for run := 0; run < 3; run++ {
		result, err := m.MaterializeDue(context.Background(), sedeNorth, today)
		require.NoError(t, err)
		for _, task := range result.Created {
			dates = append(dates, task.Date)
		}
	}

	assert.Equal(t, []time.Time{mustDate("2024-01-14"), mustDate("2024-01-15")}, dates)
	assert.Equal(t, mustDate("2024-01-16"), rules.rule(1).NextExecution)
	require.NotNil(t, rules.rule(1).LastExecution)
	assert.Equal(t, today, *rules.rule(1).LastExecution)
}

func TestMaterializeDueIsolatesFailingRule(t *testing.T) {
	rules := newFakeRuleStore(
		dailyRule(1, "2024-01-01", "2024-01-15"),
		dailyRule(2, "2024-01-01", "2024-01-15"),
		dailyRule(3, "2024-01-01", "2024-01-15"),
	)
	rules.failCommit[2] = errStoreDown
	m := NewMaterializer(rules, zaptest.NewLogger(t))

	result, err := m.MaterializeDue(context.Background(), sedeNorth, mustDate("2024-01-15"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)

	var ruleErr *RuleError
	require.True(t, errors.As(err, &ruleErr))
	assert.Equal(t, uint(2), ruleErr.RuleID)

	assert.Len(t, result.Created, 2)
	assert.Equal(t, []uint{2}, result.Failed)
	assert.Equal(t, mustDate("2024-01-15"), rules.rule(2).NextExecution)
	assert.Nil(t, rules.rule(2).LastExecution)
	assert.Equal(t, mustDate("2024-01-16"), rules.rule(1).NextExecution)
	assert.Equal(t, mustDate("2024-01-16"), rules.rule(3).NextExecution)
}

func TestMaterializeDueReportsInvalidRule(t *testing.T) {
	bad := dailyRule(1, "2024-01-01", "2024-01-15")
	bad.Frequency = "yearly"
	noDay := dailyRule(2, "2024-01-01", "2024-01-15")
	noDay.Frequency = "monthly"
	rules := newFakeRuleStore(bad, noDay)
	m := NewMaterializer(rules, zaptest.NewLogger(t))

	result, err := m.MaterializeDue(context.Background(), sedeNorth, mustDate("2024-01-15"))
	assert.ErrorIs(t, err, recurrence.ErrInvalidRule)
	assert.Empty(t, result.Created)
	assert.ElementsMatch(t, []uint{1, 2}, result.Failed)
	assert.Equal(t, mustDate("2024-01-15"), rules.rule(1).NextExecution)
}

func TestMaterializeDueDeactivatesExhaustedRule(t *testing.T) {
	rule := dailyRule(1, "2024-01-01", "2024-01-08")
	rule.EndDate = timePtr(mustDate("2024-01-05"))
	rules := newFakeRuleStore(rule)
	m := NewMaterializer(rules, zaptest.NewLogger(t))

	result, err := m.MaterializeDue(context.Background(), sedeNorth, mustDate("2024-01-08"))
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Equal(t, []uint{1}, result.Deactivated)
	assert.False(t, rules.rule(1).IsActive)
	assert.Empty(t, rules.tasks)
}

func TestMaterializeDueLastOccurrenceDeactivates(t *testing.T) {
	rule := dailyRule(1, "2024-01-01", "2024-01-05")
	rule.EndDate = timePtr(mustDate("2024-01-05"))
	rules := newFakeRuleStore(rule)
	m := NewMaterializer(rules, zaptest.NewLogger(t))

	result, err := m.MaterializeDue(context.Background(), sedeNorth, mustDate("2024-01-05"))
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, []uint{1}, result.Deactivated)
	assert.False(t, rules.rule(1).IsActive)
	assert.Equal(t, mustDate("2024-01-06"), rules.rule(1).NextExecution)
}

func TestMaterializeDueScopesBySede(t *testing.T) {
	other := dailyRule(2, "2024-01-01", "2024-01-15")
	other.SedeID = 2
	rules := newFakeRuleStore(dailyRule(1, "2024-01-01", "2024-01-15"), other)
	m := NewMaterializer(rules, zaptest.NewLogger(t))

	result, err := m.MaterializeDue(context.Background(), sedeNorth, mustDate("2024-01-15"))
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, sedeNorth, result.Created[0].SedeID)
	assert.Equal(t, mustDate("2024-01-15"), rules.rule(2).NextExecution)
}

func TestMaterializeDueStopsOnCancelledContext(t *testing.T) {
	rules := newFakeRuleStore(dailyRule(1, "2024-01-01", "2024-01-15"))
	m := NewMaterializer(rules, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := m.MaterializeDue(ctx, sedeNorth, mustDate("2024-01-15"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Created)
}

func TestMaterializeDueLoadFailure(t *testing.T) {
	rules := newFakeRuleStore()
	rules.dueErr = errStoreDown
	m := NewMaterializer(rules, zaptest.NewLogger(t))

	_, err := m.MaterializeDue(context.Background(), sedeNorth, mustDate("2024-01-15"))
	assert.ErrorIs(t, err, errStoreDown)
}

func TestPlanOccurrenceMonthlyClamp(t *testing.T) {
	rule := dailyRule(1, "2024-01-31", "2024-01-31")
	rule.Frequency = "monthly"
	rule.DayOfMonth = 31

	plan, err := PlanOccurrence(rule, mustDate("2024-01-31"))
	require.NoError(t, err)
	require.NotNil(t, plan.Task)
	assert.Equal(t, mustDate("2024-01-31"), plan.Advance.LastExecution)
	assert.Equal(t, mustDate("2024-02-29"), plan.Advance.NextExecution)
	assert.False(t, plan.Advance.Deactivate)
}
