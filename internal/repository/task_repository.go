package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"cleanops/internal/model"
)

// TaskRepository handles CRUD for tasks. Every lookup is scoped to a sede.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) CreateTask(ctx context.Context, task *model.Task) error {
	task.Date = model.DateOf(task.Date)
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, sedeID, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("sede_id = ? AND id = ?", sedeID, taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ListByDate returns the sede's tasks on date ordered by start time.
func (r *TaskRepository) ListByDate(ctx context.Context, sedeID uint, date time.Time) ([]model.Task, error) {
	from, to := dayBounds(date)
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("sede_id = ? AND date >= ? AND date < ?", sedeID, from, to).
		Order("start_time ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) TasksForWorkerAndDate(ctx context.Context, sedeID, workerID uint, date time.Time) ([]model.Task, error) {
	from, to := dayBounds(date)
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("sede_id = ? AND worker_id = ? AND date >= ? AND date < ?", sedeID, workerID, from, to).
		Order("start_time ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list worker tasks: %w", err)
	}
	return tasks, nil
}

// ListForWorker returns a worker's tasks across all sedes in [from, to).
func (r *TaskRepository) ListForWorker(ctx context.Context, workerID uint, from, to time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("worker_id = ? AND date >= ? AND date < ?", workerID, model.DateOf(from), model.DateOf(to)).
		Order("date ASC, start_time ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateTask applies fields in a single statement and returns the stored row.
func (r *TaskRepository) UpdateTask(ctx context.Context, sedeID, taskID uint, fields map[string]interface{}) (*model.Task, error) {
	db := r.db.WithContext(ctx)
	if date, ok := fields["date"].(time.Time); ok {
		fields["date"] = model.DateOf(date)
	}
	res := db.Model(&model.Task{}).Where("sede_id = ? AND id = ?", sedeID, taskID).Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByID(ctx, sedeID, taskID)
}

func (r *TaskRepository) Delete(ctx context.Context, sedeID, taskID uint) error {
	res := r.db.WithContext(ctx).Where("sede_id = ? AND id = ?", sedeID, taskID).Delete(&model.Task{})
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func dayBounds(date time.Time) (time.Time, time.Time) {
	from := model.DateOf(date)
	return from, from.AddDate(0, 0, 1)
}
