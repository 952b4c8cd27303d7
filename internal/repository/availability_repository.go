package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cleanops/internal/model"
)

// AvailabilityRepository stores workers' weekly availability.
type AvailabilityRepository struct {
	db *gorm.DB
}

func NewAvailabilityRepository(db *gorm.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

func (r *AvailabilityRepository) AvailabilityForWorker(ctx context.Context, workerID uint) ([]model.WorkerAvailability, error) {
	var records []model.WorkerAvailability
	if err := r.db.WithContext(ctx).Where("worker_id = ?", workerID).Order("weekday ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return records, nil
}

// Set inserts or replaces the record for (worker, weekday).
func (r *AvailabilityRepository) Set(ctx context.Context, record *model.WorkerAvailability) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "worker_id"}, {Name: "weekday"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_available", "start_time", "end_time"}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("set availability: %w", err)
	}
	return nil
}
