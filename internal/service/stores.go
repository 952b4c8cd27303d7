package service

import (
	"context"
	"time"

	"cleanops/internal/model"
)

// TaskStore is the task storage collaborator. All calls are scoped to a sede.
type TaskStore interface {
	TasksForWorkerAndDate(ctx context.Context, sedeID, workerID uint, date time.Time) ([]model.Task, error)
	UpdateTask(ctx context.Context, sedeID, taskID uint, fields map[string]interface{}) (*model.Task, error)
	CreateTask(ctx context.Context, task *model.Task) error
}

// RuleStore is the recurrence rule storage collaborator.
type RuleStore interface {
	DueRules(ctx context.Context, sedeID uint, today time.Time) ([]model.RecurrenceRule, error)
	// CommitOccurrence persists task and advance atomically.
	CommitOccurrence(ctx context.Context, sedeID uint, task *model.Task, ruleID uint, advance model.RuleAdvance) error
	UpdateRule(ctx context.Context, sedeID, ruleID uint, fields map[string]interface{}) error
}

// AvailabilityStore is the availability storage collaborator.
type AvailabilityStore interface {
	AvailabilityForWorker(ctx context.Context, workerID uint) ([]model.WorkerAvailability, error)
}

// SedeLister lists every sede the materializer job must visit.
type SedeLister interface {
	ListAll(ctx context.Context) ([]model.Sede, error)
}
