package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"cleanops/internal/model"
)

// WorkerRepository handles CRUD for workers.
type WorkerRepository struct {
	db *gorm.DB
}

func NewWorkerRepository(db *gorm.DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

// UpsertFromTelegram finds or creates a worker based on TelegramID and updates basic profile info.
func (r *WorkerRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.Worker, error) {
	var worker model.Worker
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&worker).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"first_name": firstName,
			"last_name":  lastName,
			"username":   username,
		}
		if err := db.Model(&worker).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update worker: %w", err)
		}
		return &worker, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		worker = model.Worker{
			TelegramID: telegramID,
			FirstName:  firstName,
			LastName:   lastName,
			Username:   username,
			Active:     true,
		}
		if err := db.Create(&worker).Error; err != nil {
			return nil, fmt.Errorf("create worker: %w", err)
		}
		return &worker, nil
	default:
		return nil, fmt.Errorf("find worker: %w", err)
	}
}

func (r *WorkerRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.Worker, error) {
	var worker model.Worker
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&worker).Error; err != nil {
		return nil, err
	}
	return &worker, nil
}

func (r *WorkerRepository) GetByID(ctx context.Context, id uint) (*model.Worker, error) {
	var worker model.Worker
	if err := r.db.WithContext(ctx).First(&worker, id).Error; err != nil {
		return nil, err
	}
	return &worker, nil
}

func (r *WorkerRepository) ListActive(ctx context.Context) ([]model.Worker, error) {
	var workers []model.Worker
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&workers).Error; err != nil {
		return nil, err
	}
	return workers, nil
}
