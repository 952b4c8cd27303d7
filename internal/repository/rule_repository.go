package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"cleanops/internal/model"
)

// RuleRepository stores recurrence rules.
type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) Create(ctx context.Context, rule *model.RecurrenceRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (r *RuleRepository) FindByID(ctx context.Context, sedeID, ruleID uint) (*model.RecurrenceRule, error) {
	var rule model.RecurrenceRule
	if err := r.db.WithContext(ctx).Where("sede_id = ? AND id = ?", sedeID, ruleID).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *RuleRepository) ListBySede(ctx context.Context, sedeID uint) ([]model.RecurrenceRule, error) {
	var rules []model.RecurrenceRule
	if err := r.db.WithContext(ctx).Where("sede_id = ?", sedeID).
		Order("is_active DESC, next_execution ASC, id ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// ListActiveForWorker returns active rules whose template assigns workerID.
func (r *RuleRepository) ListActiveForWorker(ctx context.Context, workerID uint) ([]model.RecurrenceRule, error) {
	var rules []model.RecurrenceRule
	if err := r.db.WithContext(ctx).Where("worker_id = ? AND is_active = ?", workerID, true).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// DueRules returns active rules of the sede whose next execution is on or before today.
func (r *RuleRepository) DueRules(ctx context.Context, sedeID uint, today time.Time) ([]model.RecurrenceRule, error) {
	var rules []model.RecurrenceRule
	if err := r.db.WithContext(ctx).
		Where("sede_id = ? AND is_active = ? AND next_execution <= ?", sedeID, true, model.DateOf(today)).
		Order("next_execution ASC, id ASC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("list due rules: %w", err)
	}
	return rules, nil
}

// CommitOccurrence creates task and advances the rule in one transaction, so
// a task never exists without its rule having moved on.
func (r *RuleRepository) CommitOccurrence(ctx context.Context, sedeID uint, task *model.Task, ruleID uint, advance model.RuleAdvance) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task.SedeID = sedeID
		task.Date = model.DateOf(task.Date)
		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		updates := map[string]interface{}{
			"last_execution": model.DateOf(advance.LastExecution),
			"next_execution": model.DateOf(advance.NextExecution),
		}
		if advance.Deactivate {
			updates["is_active"] = false
		}
		res := tx.Model(&model.RecurrenceRule{}).Where("sede_id = ? AND id = ?", sedeID, ruleID).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("advance rule: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("advance rule %d: %w", ruleID, gorm.ErrRecordNotFound)
		}
		return nil
	})
}

func (r *RuleRepository) UpdateRule(ctx context.Context, sedeID, ruleID uint, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.RecurrenceRule{}).Where("sede_id = ? AND id = ?", sedeID, ruleID).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
