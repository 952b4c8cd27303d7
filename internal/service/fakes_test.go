package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"cleanops/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func uintPtr(v uint) *uint { return &v }

func timePtr(t time.Time) *time.Time { return &t }

type fakeTaskStore struct {
	mu        sync.Mutex
	tasks     map[uint]model.Task
	nextID    uint
	readErr   error
	updateErr error
	updates   int
}

func newFakeTaskStore(tasks ...model.Task) *fakeTaskStore {
	s := &fakeTaskStore{tasks: make(map[uint]model.Task), nextID: 100}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return s
}

func (s *fakeTaskStore) TasksForWorkerAndDate(_ context.Context, sedeID, workerID uint, date time.Time) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []model.Task
	for id := uint(0); id <= s.nextID; id++ {
		t, ok := s.tasks[id]
		if !ok {
			continue
		}
		if t.SedeID == sedeID && t.AssignedTo(workerID) && model.DateOf(t.Date).Equal(model.DateOf(date)) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTaskStore) UpdateTask(_ context.Context, sedeID, taskID uint, fields map[string]interface{}) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	t, ok := s.tasks[taskID]
	if !ok || t.SedeID != sedeID {
		return nil, gorm.ErrRecordNotFound
	}
	for k, v := range fields {
		switch k {
		case "worker_id":
			id := v.(uint)
			t.WorkerID = &id
		case "date":
			t.Date = v.(time.Time)
		case "start_time":
			t.StartTime = v.(string)
		case "end_time":
			t.EndTime = v.(string)
		case "status":
			t.Status = v.(model.TaskStatus)
		}
	}
	s.tasks[taskID] = t
	return &t, nil
}

func (s *fakeTaskStore) CreateTask(_ context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	task.ID = s.nextID
	s.tasks[task.ID] = *task
	return nil
}

type fakeAvailabilityStore struct {
	records map[uint][]model.WorkerAvailability
	err     error
}

func (s *fakeAvailabilityStore) AvailabilityForWorker(_ context.Context, workerID uint) ([]model.WorkerAvailability, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.records[workerID], nil
}

// fakeRuleStore commits occurrences in memory. failCommit makes a single
// rule's commit fail as a rolled-back transaction would.
type fakeRuleStore struct {
	mu         sync.Mutex
	rules      map[uint]model.RecurrenceRule
	tasks      []model.Task
	failCommit map[uint]error
	dueErr     error
	nextTaskID uint
}

func newFakeRuleStore(rules ...model.RecurrenceRule) *fakeRuleStore {
	s := &fakeRuleStore{rules: make(map[uint]model.RecurrenceRule), failCommit: make(map[uint]error)}
	for _, r := range rules {
		s.rules[r.ID] = r
	}
	return s
}

func (s *fakeRuleStore) DueRules(_ context.Context, sedeID uint, today time.Time) ([]model.RecurrenceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	var out []model.RecurrenceRule
	for id := uint(0); id < 1000; id++ {
		r, ok := s.rules[id]
		if !ok {
			continue
		}
		if r.SedeID == sedeID && r.IsActive && !r.NextExecution.After(today) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeRuleStore) CommitOccurrence(_ context.Context, sedeID uint, task *model.Task, ruleID uint, advance model.RuleAdvance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failCommit[ruleID]; err != nil {
		return err
	}
	r, ok := s.rules[ruleID]
	if !ok || r.SedeID != sedeID {
		return gorm.ErrRecordNotFound
	}
	s.nextTaskID++
	task.ID = s.nextTaskID
	s.tasks = append(s.tasks, *task)
	last := advance.LastExecution
	r.LastExecution = &last
	r.NextExecution = advance.NextExecution
	if advance.Deactivate {
		r.IsActive = false
	}
	s.rules[ruleID] = r
	return nil
}

func (s *fakeRuleStore) UpdateRule(_ context.Context, sedeID, ruleID uint, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok || r.SedeID != sedeID {
		return gorm.ErrRecordNotFound
	}
	if v, ok := fields["is_active"]; ok {
		r.IsActive = v.(bool)
	}
	if v, ok := fields["next_execution"]; ok {
		r.NextExecution = v.(time.Time)
	}
	s.rules[ruleID] = r
	return nil
}

func (s *fakeRuleStore) rule(id uint) model.RecurrenceRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules[id]
}

type fakeSedes struct {
	sedes []model.Sede
	err   error
}

func (f fakeSedes) ListAll(context.Context) ([]model.Sede, error) {
	return f.sedes, f.err
}

type recordingSink struct {
	mu        sync.Mutex
	runs      int
	skipped   int
	created   int
	outcomes  []string
	conflicts []int
}

func (s *recordingSink) MaterializeRunCompleted(_ time.Duration, created, _, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.created += created
}

func (s *recordingSink) MaterializeRunSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
}

func (s *recordingSink) AssignmentOutcome(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, state)
}

func (s *recordingSink) AssignmentConflicts(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = append(s.conflicts, count)
}

var errStoreDown = errors.New("store unavailable")
