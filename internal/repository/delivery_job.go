package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/packsmith/mailflow/interfaces"
	"github.com/packsmith/mailflow/internal/enum"
	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/utils"
)

// GormDeliveryJobRepository implements DeliveryJobRepository using GORM
type GormDeliveryJobRepository struct {
	db *gorm.DB
}

func NewDeliveryJobRepository(db *gorm.DB) interfaces.DeliveryJobRepository {
	return &GormDeliveryJobRepository{db: db}
}

func (r *GormDeliveryJobRepository) Create(ctx context.Context, job *models.DeliveryJob) error {
	if job == nil {
		return mailflow_errors.ErrInvalidInput
	}

	job.CreatedAt = utils.Now()
	job.UpdatedAt = utils.Now()

	return r.db.WithContext(ctx).Create(job).Error
}

func (r *GormDeliveryJobRepository) GetByID(ctx context.Context, id string) (*models.DeliveryJob, error) {
	if id == "" {
		return nil, mailflow_errors.ErrInvalidInput
	}

	var job models.DeliveryJob
	result := r.db.WithContext(ctx).Preload("Attachments").Where("id = ?", id).First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, mailflow_errors.ErrJobNotFound
		}
		return nil, result.Error
	}

	return &job, nil
}

func (r *GormDeliveryJobRepository) Update(ctx context.Context, job *models.DeliveryJob) error {
	if job == nil || job.ID == "" {
		return mailflow_errors.ErrInvalidInput
	}

	job.UpdatedAt = utils.Now()

	result := r.db.WithContext(ctx).Model(&models.DeliveryJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":          job.Status,
			"attempt_count":   job.AttemptCount,
			"next_attempt_at": job.NextAttemptAt,
			"sent_at":         job.SentAt,
			"status_detail":   job.StatusDetail,
			"updated_at":      job.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return mailflow_errors.ErrJobNotFound
	}

	return nil
}

func (r *GormDeliveryJobRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.DeliveryJob, error) {
	if limit <= 0 {
		limit = 100
	}

	var jobs []models.DeliveryJob
	result := r.db.WithContext(ctx).Preload("Attachments").
		Where("status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", enum.DeliveryStatusPending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&jobs)
	if result.Error != nil {
		return nil, result.Error
	}

	return jobs, nil
}

// MarkCancelled flips a PENDING job to cancelled. Terminal jobs are left
// untouched.
func (r *GormDeliveryJobRepository) MarkCancelled(ctx context.Context, id string) error {
	if id == "" {
		return mailflow_errors.ErrInvalidInput
	}

	result := r.db.WithContext(ctx).Model(&models.DeliveryJob{}).
		Where("id = ? AND status = ?", id, enum.DeliveryStatusPending).
		Updates(map[string]interface{}{
			"status":     enum.DeliveryStatusCancelled,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var job models.DeliveryJob
		if err := r.db.WithContext(ctx).Select("id").Where("id = ?", id).First(&job).Error; err != nil {
			return mailflow_errors.ErrJobNotFound
		}
		return mailflow_errors.ErrJobTerminal
	}

	return nil
}

func (r *GormDeliveryJobRepository) GetStatus(ctx context.Context, id string) (enum.DeliveryStatus, error) {
	if id == "" {
		return "", mailflow_errors.ErrInvalidInput
	}

	var job models.DeliveryJob
	result := r.db.WithContext(ctx).Select("status").Where("id = ?", id).First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", mailflow_errors.ErrJobNotFound
		}
		return "", result.Error
	}

	return job.Status, nil
}
