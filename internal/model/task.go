package model

import "time"

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// Task is a concrete cleaning job on a date. Times are "HH:MM".
type Task struct {
	ID          uint      `gorm:"primaryKey"`
	SedeID      uint      `gorm:"index:idx_task_sede_date"`
	Date        time.Time `gorm:"index:idx_task_sede_date"`
	StartTime   string
	EndTime     string
	WorkerID    *uint      `gorm:"index"`
	Status      TaskStatus `gorm:"default:pending"`
	PropertyRef string
	ClientRef   string
	ServiceType string
	Checklist   string
	CostCents   int64
	RuleID      *uint `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AssignedTo reports whether the task is assigned to workerID.
func (t Task) AssignedTo(workerID uint) bool {
	return t.WorkerID != nil && *t.WorkerID == workerID
}
