package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cleanops/internal/metrics"
	"cleanops/internal/model"
	"cleanops/internal/schedule"
)

var (
	// ErrDuplicateAssignment is returned when the same task/worker pair fired again within the debounce window.
	ErrDuplicateAssignment = errors.New("duplicate assignment event")
	// ErrInvalidCandidate is returned for candidates that cannot be checked at all.
	ErrInvalidCandidate = errors.New("invalid assignment candidate")
	// ErrUnexpectedState is returned when Confirm or Decline is called out of turn.
	ErrUnexpectedState = errors.New("assignment not awaiting confirmation")
)

type AssignmentState string

const (
	StateChecking              AssignmentState = "checking"
	StateConflictPromptPending AssignmentState = "conflict-prompt-pending"
	StateRejected              AssignmentState = "rejected"
	StateApplying              AssignmentState = "applying"
	StateApplied               AssignmentState = "applied"
	StateFailed                AssignmentState = "failed"
)

const reasonDeclined = "assignment declined"

// Candidate is a proposed placement of a task on a worker's day.
type Candidate struct {
	TaskID   uint
	WorkerID uint
	Date     time.Time
	Slot     schedule.Range
}

// Attempt tracks one assignment through its states.
type Attempt struct {
	SedeID    uint
	Candidate Candidate
	State     AssignmentState
	Conflicts []model.Task
	Reason    string
	Err       error
	Task      *model.Task
}

// Done reports whether the attempt reached a terminal state.
func (a *Attempt) Done() bool {
	switch a.State {
	case StateRejected, StateApplied, StateFailed:
		return true
	}
	return false
}

// Assigner runs overlap and availability checks before moving a task.
type Assigner struct {
	tasks        TaskStore
	availability AvailabilityStore
	debounce     *Debouncer
	metrics      metrics.Sink
	log          *zap.Logger
}

func NewAssigner(tasks TaskStore, availability AvailabilityStore, debounce *Debouncer, sink metrics.Sink, log *zap.Logger) *Assigner {
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Assigner{
		tasks:        tasks,
		availability: availability,
		debounce:     debounce,
		metrics:      sink,
		log:          log,
	}
}

// Begin checks a candidate. Without conflicts the attempt runs straight
// through availability and the update; with conflicts it stops in
// StateConflictPromptPending until Confirm or Decline.
func (a *Assigner) Begin(ctx context.Context, sedeID uint, c Candidate) (*Attempt, error) {
	if c.TaskID == 0 || c.WorkerID == 0 || c.Date.IsZero() || !c.Slot.Valid() {
		return nil, fmt.Errorf("%w: task %d worker %d slot %s", ErrInvalidCandidate, c.TaskID, c.WorkerID, c.Slot)
	}
	if a.debounce.Seen(c.TaskID, c.WorkerID) {
		return nil, ErrDuplicateAssignment
	}

	c.Date = model.DateOf(c.Date)
	attempt := &Attempt{SedeID: sedeID, Candidate: c, State: StateChecking}

	sameDay, err := a.tasks.TasksForWorkerAndDate(ctx, sedeID, c.WorkerID, c.Date)
	if err != nil {
		a.fail(attempt, fmt.Errorf("load worker tasks: %w", err))
		return attempt, nil
	}

	attempt.Conflicts = schedule.DetectOverlaps(c.WorkerID, c.Date, c.Slot, sameDay, c.TaskID)
	a.metrics.AssignmentConflicts(len(attempt.Conflicts))
	if len(attempt.Conflicts) > 0 {
		attempt.State = StateConflictPromptPending
		a.metrics.AssignmentOutcome(string(attempt.State))
		a.logger(attempt).Info("assignment has conflicts", zap.Int("conflicts", len(attempt.Conflicts)))
		return attempt, nil
	}

	a.proceed(ctx, attempt)
	return attempt, nil
}

// Confirm accepts the conflicts of a pending attempt and continues it.
func (a *Assigner) Confirm(ctx context.Context, attempt *Attempt) error {
	if attempt == nil || attempt.State != StateConflictPromptPending {
		return ErrUnexpectedState
	}
	a.logger(attempt).Info("conflicts accepted")
	a.proceed(ctx, attempt)
	return nil
}

// Decline rejects a pending attempt without touching storage.
func (a *Assigner) Decline(attempt *Attempt) error {
	if attempt == nil || attempt.State != StateConflictPromptPending {
		return ErrUnexpectedState
	}
	a.reject(attempt, reasonDeclined)
	return nil
}

func (a *Assigner) proceed(ctx context.Context, attempt *Attempt) {
	c := attempt.Candidate

	records, err := a.availability.AvailabilityForWorker(ctx, c.WorkerID)
	if err != nil {
		a.fail(attempt, fmt.Errorf("load availability: %w", err))
		return
	}
	verdict := schedule.CheckAvailability(c.WorkerID, c.Date, c.Slot, records)
	if !verdict.Available {
		a.reject(attempt, verdict.Reason)
		return
	}

	attempt.State = StateApplying
	task, err := a.tasks.UpdateTask(ctx, attempt.SedeID, c.TaskID, map[string]interface{}{
		"worker_id":  c.WorkerID,
		"date":       c.Date,
		"start_time": c.Slot.Start.String(),
		"end_time":   c.Slot.End.String(),
	})
	if err != nil {
		a.fail(attempt, fmt.Errorf("update task: %w", err))
		return
	}

	attempt.State = StateApplied
	attempt.Task = task
	a.metrics.AssignmentOutcome(string(attempt.State))
	a.logger(attempt).Info("task assigned", zap.Int("accepted_conflicts", len(attempt.Conflicts)))
}

func (a *Assigner) reject(attempt *Attempt, reason string) {
	attempt.State = StateRejected
	attempt.Reason = reason
	a.metrics.AssignmentOutcome(string(attempt.State))
	a.logger(attempt).Info("assignment rejected", zap.String("reason", reason))
}

func (a *Assigner) fail(attempt *Attempt, err error) {
	attempt.State = StateFailed
	attempt.Err = err
	a.debounce.Forget(attempt.Candidate.TaskID, attempt.Candidate.WorkerID)
	a.metrics.AssignmentOutcome(string(attempt.State))
	a.logger(attempt).Error("assignment failed", zap.Error(err))
}

func (a *Assigner) logger(attempt *Attempt) *zap.Logger {
	return a.log.With(
		zap.Uint("sede_id", attempt.SedeID),
		zap.Uint("task_id", attempt.Candidate.TaskID),
		zap.Uint("worker_id", attempt.Candidate.WorkerID),
		zap.String("date", attempt.Candidate.Date.Format(model.DateLayout)),
		zap.String("slot", attempt.Candidate.Slot.String()),
	)
}
