package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cleanops/internal/model"
	"cleanops/internal/repository"
	"cleanops/internal/schedule"
)

// TaskInput represents data required to create a one-off task.
// Workers are attached later through the Assigner.
type TaskInput struct {
	Date        time.Time
	Slot        schedule.Range
	PropertyRef string
	ClientRef   string
	ServiceType string
	Checklist   string
	CostCents   int64
}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo *repository.TaskRepository
}

func NewTaskService(taskRepo *repository.TaskRepository) *TaskService {
	return &TaskService{taskRepo: taskRepo}
}

func (s *TaskService) CreateTask(ctx context.Context, sedeID uint, input TaskInput) (*model.Task, error) {
	if strings.TrimSpace(input.PropertyRef) == "" {
		return nil, fmt.Errorf("property is required")
	}
	if input.Date.IsZero() {
		return nil, fmt.Errorf("date is required")
	}
	if !input.Slot.Valid() {
		return nil, fmt.Errorf("%w: %s", schedule.ErrInvalidClock, input.Slot)
	}
	if input.CostCents < 0 {
		return nil, fmt.Errorf("cost must not be negative")
	}

	task := model.Task{
		SedeID:      sedeID,
		Date:        model.DateOf(input.Date),
		StartTime:   input.Slot.Start.String(),
		EndTime:     input.Slot.End.String(),
		Status:      model.TaskStatusPending,
		PropertyRef: strings.TrimSpace(input.PropertyRef),
		ClientRef:   strings.TrimSpace(input.ClientRef),
		ServiceType: strings.TrimSpace(input.ServiceType),
		Checklist:   strings.TrimSpace(input.Checklist),
		CostCents:   input.CostCents,
	}
	if err := s.taskRepo.CreateTask(ctx, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) ListByDate(ctx context.Context, sedeID uint, date time.Time) ([]model.Task, error) {
	return s.taskRepo.ListByDate(ctx, sedeID, date)
}

func (s *TaskService) GetTask(ctx context.Context, sedeID, taskID uint) (*model.Task, error) {
	return s.taskRepo.FindByID(ctx, sedeID, taskID)
}

// SetStatus moves a task between pending, in-progress and completed.
func (s *TaskService) SetStatus(ctx context.Context, sedeID, taskID uint, status model.TaskStatus) (*model.Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	return s.taskRepo.UpdateTask(ctx, sedeID, taskID, map[string]interface{}{"status": status})
}

// DeleteTask removes a task. Tasks generated from a rule are not recreated.
func (s *TaskService) DeleteTask(ctx context.Context, sedeID, taskID uint) error {
	return s.taskRepo.Delete(ctx, sedeID, taskID)
}

// WorkerTasks lists a worker's tasks across sedes for days [from, from+days).
func (s *TaskService) WorkerTasks(ctx context.Context, workerID uint, from time.Time, days int) ([]model.Task, error) {
	if days < 1 {
		days = 1
	}
	start := model.DateOf(from)
	return s.taskRepo.ListForWorker(ctx, workerID, start, start.AddDate(0, 0, days))
}
