package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"cleanops/internal/model"
)

// SedeRepository manages sites.
type SedeRepository struct {
	db *gorm.DB
}

func NewSedeRepository(db *gorm.DB) *SedeRepository {
	return &SedeRepository{db: db}
}

func (r *SedeRepository) GetOrCreate(ctx context.Context, name string) (*model.Sede, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("sede name is required")
	}

	var sede model.Sede
	db := r.db.WithContext(ctx)
	err := db.Where("name = ?", name).First(&sede).Error
	switch {
	case err == nil:
		return &sede, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		sede = model.Sede{Name: name}
		if err := db.Create(&sede).Error; err != nil {
			return nil, fmt.Errorf("create sede: %w", err)
		}
		return &sede, nil
	default:
		return nil, fmt.Errorf("find sede: %w", err)
	}
}

func (r *SedeRepository) ListAll(ctx context.Context) ([]model.Sede, error) {
	var sedes []model.Sede
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&sedes).Error; err != nil {
		return nil, err
	}
	return sedes, nil
}

func (r *SedeRepository) GetByID(ctx context.Context, id uint) (*model.Sede, error) {
	var sede model.Sede
	if err := r.db.WithContext(ctx).First(&sede, id).Error; err != nil {
		return nil, err
	}
	return &sede, nil
}

func (r *SedeRepository) FindByName(ctx context.Context, name string) (*model.Sede, error) {
	var sede model.Sede
	if err := r.db.WithContext(ctx).Where("LOWER(name) = LOWER(?)", strings.TrimSpace(name)).First(&sede).Error; err != nil {
		return nil, err
	}
	return &sede, nil
}
