package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"cleanops/internal/model"
	"cleanops/internal/repository"
	"cleanops/internal/schedule"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := repository.NewDB(dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestTaskServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sede, err := repository.NewSedeRepository(db).GetOrCreate(ctx, "North")
	require.NoError(t, err)
	svc := NewTaskService(repository.NewTaskRepository(db))

	_, err = svc.CreateTask(ctx, sede.ID, TaskInput{Date: day(2024, 3, 1), Slot: mustRange("09:00-11:00")})
	assert.Error(t, err, "property is required")

	_, err = svc.CreateTask(ctx, sede.ID, TaskInput{PropertyRef: "villa-12", Date: day(2024, 3, 1)})
	assert.ErrorIs(t, err, schedule.ErrInvalidClock)

	task, err := svc.CreateTask(ctx, sede.ID, TaskInput{
		Date:        time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC),
		Slot:        mustRange("09:00-11:00"),
		PropertyRef: " villa-12 ",
		ServiceType: "deep clean",
		CostCents:   9000,
	})
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 1), task.Date)
	assert.Equal(t, "villa-12", task.PropertyRef)
	assert.Equal(t, model.TaskStatusPending, task.Status)
	assert.Nil(t, task.WorkerID)

	listed, err := svc.ListByDate(ctx, sede.ID, day(2024, 3, 1))
	require.NoError(t, err)
	require.Len(t, listed, 1)

	updated, err := svc.SetStatus(ctx, sede.ID, task.ID, model.TaskStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusInProgress, updated.Status)

	_, err = svc.SetStatus(ctx, sede.ID, task.ID, "done")
	assert.Error(t, err)

	_, err = svc.GetTask(ctx, sede.ID+1, task.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, svc.DeleteTask(ctx, sede.ID, task.ID))
	assert.ErrorIs(t, svc.DeleteTask(ctx, sede.ID, task.ID), gorm.ErrRecordNotFound)
}

func TestRuleServiceCreatePauseResumePreview(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sede, err := repository.NewSedeRepository(db).GetOrCreate(ctx, "North")
	require.NoError(t, err)
	svc := NewRuleService(repository.NewRuleRepository(db))

	_, err = svc.CreateRule(ctx, sede.ID, RuleInput{
		PropertyRef: "villa-12",
		Slot:        mustRange("10:00-12:00"),
		Frequency:   "monthly",
		StartDate:   day(2024, 1, 31),
	})
	require.Error(t, err, "monthly needs a day")

	rule, err := svc.CreateRule(ctx, sede.ID, RuleInput{
		PropertyRef: "villa-12",
		ServiceType: "turnover",
		Slot:        mustRange("10:00-12:00"),
		WorkerID:    uintPtr(workerW),
		Frequency:   "Weekly",
		Interval:    2,
		DaysOfWeek:  []int{3, 1, 3},
		StartDate:   day(2024, 1, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, "weekly", rule.Frequency)
	assert.Equal(t, "1,3", rule.DaysOfWeek)
	assert.Equal(t, day(2024, 1, 1), rule.NextExecution)
	assert.True(t, rule.IsActive)

	preview, err := svc.PreviewRule(ctx, sede.ID, rule.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2024, 1, 1), day(2024, 1, 15), day(2024, 1, 29)}, preview)

	require.NoError(t, svc.PauseRule(ctx, sede.ID, rule.ID))
	paused, err := svc.GetRule(ctx, sede.ID, rule.ID)
	require.NoError(t, err)
	assert.False(t, paused.IsActive)

	resumed, err := svc.ResumeRule(ctx, sede.ID, rule.ID, day(2024, 2, 1))
	require.NoError(t, err)
	assert.True(t, resumed.IsActive)
	assert.Equal(t, day(2024, 2, 12), resumed.NextExecution)

	stored, err := svc.GetRule(ctx, sede.ID, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 2, 12), stored.NextExecution)

	forWorker, err := svc.WorkerRules(ctx, workerW)
	require.NoError(t, err)
	assert.Len(t, forWorker, 1)

	_, err = svc.ResumeRule(ctx, sede.ID+1, rule.ID, day(2024, 2, 1))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRuleServiceResumeFinishedRule(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sede, err := repository.NewSedeRepository(db).GetOrCreate(ctx, "North")
	require.NoError(t, err)
	svc := NewRuleService(repository.NewRuleRepository(db))

	rule, err := svc.CreateRule(ctx, sede.ID, RuleInput{
		PropertyRef: "villa-12",
		Slot:        mustRange("10:00-12:00"),
		Frequency:   "daily",
		StartDate:   day(2024, 1, 1),
		EndDate:     timePtr(day(2024, 1, 10)),
	})
	require.NoError(t, err)
	require.NoError(t, svc.PauseRule(ctx, sede.ID, rule.ID))

	_, err = svc.ResumeRule(ctx, sede.ID, rule.ID, day(2024, 2, 1))
	assert.ErrorIs(t, err, ErrRuleFinished)
}

func TestParseAvailability(t *testing.T) {
	tests := []struct {
		value     string
		available bool
		start     string
		end       string
		wantErr   bool
	}{
		{value: "off"},
		{value: "all", available: true},
		{value: "08:00-17:00", available: true, start: "08:00", end: "17:00"},
		{value: "17:00-08:00", wantErr: true},
		{value: "sometimes", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			got, err := ParseAvailability(workerW, time.Friday, tc.value)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int(time.Friday), got.Weekday)
			assert.Equal(t, tc.available, got.IsAvailable)
			assert.Equal(t, tc.start, got.StartTime)
			assert.Equal(t, tc.end, got.EndTime)
		})
	}

	_, err := ParseAvailability(workerW, time.Weekday(7), "all")
	assert.Error(t, err)
}

func TestAvailabilityServiceSetAndCheck(t *testing.T) {
	ctx := context.Background()
	svc := NewAvailabilityService(repository.NewAvailabilityRepository(newTestDB(t)))

	_, err := svc.SetDay(ctx, workerW, time.Friday, "08:00-17:00")
	require.NoError(t, err)

	verdict, err := svc.Check(ctx, workerW, day(2024, 3, 1), mustRange("07:00-09:00"))
	require.NoError(t, err)
	assert.False(t, verdict.Available)
	assert.Equal(t, "requested 07:00-09:00 is outside working hours 08:00-17:00", verdict.Reason)

	_, err = svc.SetDay(ctx, workerW, time.Friday, "all")
	require.NoError(t, err)
	verdict, err = svc.Check(ctx, workerW, day(2024, 3, 1), mustRange("07:00-09:00"))
	require.NoError(t, err)
	assert.True(t, verdict.Available)

	week, err := svc.Week(ctx, workerW)
	require.NoError(t, err)
	assert.Len(t, week, 1)
}

func TestAgendaServiceMarksOverlaps(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sedes := repository.NewSedeRepository(db)
	workers := repository.NewWorkerRepository(db)
	tasks := repository.NewTaskRepository(db)
	svc := NewAgendaService(tasks, sedes, workers)

	sede, err := sedes.GetOrCreate(ctx, "North")
	require.NoError(t, err)
	ana, err := workers.UpsertFromTelegram(ctx, 1001, "Ana", "Lima", "ana")
	require.NoError(t, err)

	require.NoError(t, tasks.CreateTask(ctx, &model.Task{SedeID: sede.ID, Date: day(2024, 3, 1), StartTime: "09:00", EndTime: "11:00", WorkerID: &ana.ID, PropertyRef: "villa-12"}))
	require.NoError(t, tasks.CreateTask(ctx, &model.Task{SedeID: sede.ID, Date: day(2024, 3, 1), StartTime: "10:00", EndTime: "12:00", WorkerID: &ana.ID, PropertyRef: "flat-3"}))
	require.NoError(t, tasks.CreateTask(ctx, &model.Task{SedeID: sede.ID, Date: day(2024, 3, 1), StartTime: "14:00", EndTime: "15:00", PropertyRef: "loft <b>"}))

	text, err := svc.SedeAgenda(ctx, sede.ID, day(2024, 3, 1))
	require.NoError(t, err)
	assert.Contains(t, text, "Ana Lima")
	assert.Contains(t, text, "⚠️ <code>09:00-11:00</code>")
	assert.Contains(t, text, "⚠️ <code>10:00-12:00</code>")
	assert.Contains(t, text, "Unassigned")
	assert.Contains(t, text, "loft &lt;b&gt;")

	mine, err := svc.WorkerAgenda(ctx, *ana, day(2024, 3, 1))
	require.NoError(t, err)
	assert.Contains(t, mine, "villa-12")
	assert.Contains(t, mine, "📍 North")
	assert.NotContains(t, mine, "loft")

	empty, err := svc.WorkerAgenda(ctx, *ana, day(2024, 3, 2))
	require.NoError(t, err)
	assert.Contains(t, empty, "nothing scheduled")
}
