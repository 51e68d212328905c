package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/packsmith/mailflow/interfaces"
	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/utils"
)

// GormDeliveryLogRepository implements DeliveryLogRepository using GORM.
// The table is append-only: no update or delete methods exist.
type GormDeliveryLogRepository struct {
	db *gorm.DB
}

func NewDeliveryLogRepository(db *gorm.DB) interfaces.DeliveryLogRepository {
	return &GormDeliveryLogRepository{db: db}
}

func (r *GormDeliveryLogRepository) Create(ctx context.Context, entry *models.DeliveryLogEntry) error {
	if entry == nil || entry.JobID == "" {
		return mailflow_errors.ErrInvalidInput
	}

	entry.CreatedAt = utils.Now()

	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *GormDeliveryLogRepository) ListByJob(ctx context.Context, jobID string) ([]models.DeliveryLogEntry, error) {
	if jobID == "" {
		return nil, mailflow_errors.ErrInvalidInput
	}

	var entries []models.DeliveryLogEntry
	result := r.db.WithContext(ctx).Where("job_id = ?", jobID).Order("created_at ASC").Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}

	return entries, nil
}

func (r *GormDeliveryLogRepository) Search(ctx context.Context, taskType string, from, to *time.Time, limit, offset int) ([]models.DeliveryLogEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.DeliveryLogEntry{})
	if taskType != "" {
		query = query.Where("task_type = ?", taskType)
	}
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at <= ?", *to)
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}

	var entries []models.DeliveryLogEntry
	result := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries)
	if result.Error != nil {
		return nil, 0, result.Error
	}

	return entries, totalCount, nil
}
