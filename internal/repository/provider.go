package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/packsmith/mailflow/interfaces"
	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/utils"
)

// GormProviderRepository implements ProviderRepository using GORM
type GormProviderRepository struct {
	db *gorm.DB
}

func NewProviderRepository(db *gorm.DB) interfaces.ProviderRepository {
	return &GormProviderRepository{db: db}
}

// providerPriorityLockKey serializes every transaction that assigns or
// renumbers priorities. Row locks alone cannot cover concurrent inserts into
// an empty table.
const providerPriorityLockKey = 874215011

// Create stores the provider, assigning the next free priority when none is
// set. Assignment and insert run in one serialized transaction so concurrent
// creates never observe the same priority.
func (r *GormProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	if provider == nil {
		return mailflow_errors.ErrInvalidInput
	}

	provider.SenderAddress = utils.NormalizeEmailAddress(provider.SenderAddress)
	provider.CreatedAt = utils.Now()
	provider.UpdatedAt = utils.Now()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", providerPriorityLockKey).Error; err != nil {
			return err
		}

		if provider.Priority == 0 {
			var max *int
			err := tx.Model(&models.Provider{}).
				Select("MAX(priority)").
				Scan(&max).Error
			if err != nil {
				return err
			}
			if max == nil {
				provider.Priority = 1
			} else {
				provider.Priority = *max + 1
			}
		}

		return tx.Create(provider).Error
	})
}

func (r *GormProviderRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	if id == "" {
		return nil, mailflow_errors.ErrInvalidInput
	}

	var provider models.Provider
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&provider)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, mailflow_errors.ErrProviderNotFound
		}
		return nil, result.Error
	}

	return &provider, nil
}

func (r *GormProviderRepository) GetBySenderAddress(ctx context.Context, address string) (*models.Provider, error) {
	address = utils.NormalizeEmailAddress(address)
	if address == "" {
		return nil, mailflow_errors.ErrInvalidInput
	}

	var provider models.Provider
	result := r.db.WithContext(ctx).Where("sender_address = ?", address).First(&provider)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, mailflow_errors.ErrProviderNotFound
		}
		return nil, result.Error
	}

	return &provider, nil
}

func (r *GormProviderRepository) List(ctx context.Context) ([]models.Provider, error) {
	var providers []models.Provider
	result := r.db.WithContext(ctx).Order("priority ASC").Find(&providers)
	if result.Error != nil {
		return nil, result.Error
	}

	return providers, nil
}

func (r *GormProviderRepository) ListActive(ctx context.Context) ([]models.Provider, error) {
	var providers []models.Provider
	result := r.db.WithContext(ctx).Where("is_active = ?", true).Order("priority ASC").Find(&providers)
	if result.Error != nil {
		return nil, result.Error
	}

	return providers, nil
}

func (r *GormProviderRepository) Update(ctx context.Context, provider *models.Provider) error {
	if provider == nil || provider.ID == "" {
		return mailflow_errors.ErrInvalidInput
	}

	provider.SenderAddress = utils.NormalizeEmailAddress(provider.SenderAddress)
	provider.UpdatedAt = utils.Now()

	// Priority is deliberately excluded; it only changes through PromoteToPrimary
	result := r.db.WithContext(ctx).Model(&models.Provider{}).
		Where("id = ?", provider.ID).
		Updates(map[string]interface{}{
			"display_name":   provider.DisplayName,
			"sender_address": provider.SenderAddress,
			"sender_name":    provider.SenderName,
			"transport_kind": provider.TransportKind,
			"family":         provider.Family,
			"smtp_host":      provider.SmtpHost,
			"smtp_port":      provider.SmtpPort,
			"smtp_security":  provider.SmtpSecurity,
			"smtp_username":  provider.SmtpUsername,
			"smtp_password":  provider.SmtpPassword,
			"api_key":        provider.APIKey,
			"api_secret":     provider.APISecret,
			"api_endpoint":   provider.APIEndpoint,
			"is_active":      provider.IsActive,
			"updated_at":     provider.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return mailflow_errors.ErrProviderNotFound
	}

	return nil
}

// PromoteToPrimary moves the provider to priority 1 and renumbers the rest
// densely, preserving their relative order. Runs in one transaction so
// concurrent promotes or deletes never observe duplicate priorities.
func (r *GormProviderRepository) PromoteToPrimary(ctx context.Context, id string) error {
	if id == "" {
		return mailflow_errors.ErrInvalidInput
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", providerPriorityLockKey).Error; err != nil {
			return err
		}

		var providers []models.Provider
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Order("priority ASC").Find(&providers).Error; err != nil {
			return err
		}

		found := false
		for i := range providers {
			if providers[i].ID == id {
				found = true
				break
			}
		}
		if !found {
			return mailflow_errors.ErrProviderNotFound
		}

		// Park every row on the negative range first; the unique index checks
		// each UPDATE as it lands, so renumbering in place would collide.
		err := tx.Model(&models.Provider{}).
			Where("priority > 0").
			UpdateColumn("priority", gorm.Expr("priority * -1")).Error
		if err != nil {
			return err
		}

		next := 2
		for i := range providers {
			priority := next
			if providers[i].ID == id {
				priority = 1
			} else {
				next++
			}
			err := tx.Model(&models.Provider{}).
				Where("id = ?", providers[i].ID).
				Updates(map[string]interface{}{
					"priority":   priority,
					"updated_at": utils.Now(),
				}).Error
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *GormProviderRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return mailflow_errors.ErrInvalidInput
	}

	result := r.db.WithContext(ctx).Delete(&models.Provider{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return mailflow_errors.ErrProviderNotFound
	}

	return nil
}

func (r *GormProviderRepository) RecordSendSuccess(ctx context.Context, id string) error {
	if id == "" {
		return mailflow_errors.ErrInvalidInput
	}

	return r.db.WithContext(ctx).Model(&models.Provider{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"consecutive_failures": 0,
			"updated_at":           utils.Now(),
		}).Error
}

func (r *GormProviderRepository) RecordSendFailure(ctx context.Context, id string, errorMessage string) error {
	if id == "" {
		return mailflow_errors.ErrInvalidInput
	}

	// Single UPDATE with an expression keeps the increment atomic under
	// concurrent sends
	return r.db.WithContext(ctx).Model(&models.Provider{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"consecutive_failures": gorm.Expr("consecutive_failures + 1"),
			"last_error_message":   errorMessage,
			"updated_at":           utils.Now(),
		}).Error
}

func (r *GormProviderRepository) SetVerification(ctx context.Context, id string, verified bool, errorMessage string, testedAt time.Time) error {
	if id == "" {
		return mailflow_errors.ErrInvalidInput
	}

	updates := map[string]interface{}{
		"is_verified":        verified,
		"last_error_message": errorMessage,
		"last_test_at":       testedAt,
		"updated_at":         utils.Now(),
	}
	if verified {
		updates["consecutive_failures"] = 0
	}

	result := r.db.WithContext(ctx).Model(&models.Provider{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return mailflow_errors.ErrProviderNotFound
	}

	return nil
}
