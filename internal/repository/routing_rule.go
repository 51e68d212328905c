package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/packsmith/mailflow/interfaces"
	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/utils"
)

// GormRoutingRuleRepository implements RoutingRuleRepository using GORM
type GormRoutingRuleRepository struct {
	db *gorm.DB
}

func NewRoutingRuleRepository(db *gorm.DB) interfaces.RoutingRuleRepository {
	return &GormRoutingRuleRepository{db: db}
}

func (r *GormRoutingRuleRepository) Upsert(ctx context.Context, rule *models.RoutingRule) error {
	if rule == nil || rule.TaskType == "" {
		return mailflow_errors.ErrInvalidInput
	}

	var existing models.RoutingRule
	result := r.db.WithContext(ctx).Where("task_type = ?", rule.TaskType).First(&existing)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		rule.CreatedAt = utils.Now()
		rule.UpdatedAt = utils.Now()
		return r.db.WithContext(ctx).Create(rule).Error
	}

	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = utils.Now()
	return r.db.WithContext(ctx).Model(&models.RoutingRule{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"provider_ids": rule.ProviderIDs,
			"updated_at":   rule.UpdatedAt,
		}).Error
}

func (r *GormRoutingRuleRepository) GetByTaskType(ctx context.Context, taskType string) (*models.RoutingRule, error) {
	if taskType == "" {
		return nil, mailflow_errors.ErrInvalidInput
	}

	var rule models.RoutingRule
	result := r.db.WithContext(ctx).Where("task_type = ?", taskType).First(&rule)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, mailflow_errors.ErrRoutingRuleNotFound
		}
		return nil, result.Error
	}

	return &rule, nil
}

func (r *GormRoutingRuleRepository) List(ctx context.Context) ([]models.RoutingRule, error) {
	var rules []models.RoutingRule
	result := r.db.WithContext(ctx).Order("task_type ASC").Find(&rules)
	if result.Error != nil {
		return nil, result.Error
	}

	return rules, nil
}

func (r *GormRoutingRuleRepository) DeleteByTaskType(ctx context.Context, taskType string) error {
	if taskType == "" {
		return mailflow_errors.ErrInvalidInput
	}

	result := r.db.WithContext(ctx).Delete(&models.RoutingRule{}, "task_type = ?", taskType)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return mailflow_errors.ErrRoutingRuleNotFound
	}

	return nil
}
