package interfaces

import (
	"context"
	"time"

	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/models"
)

// ProviderRepository defines the interface for provider data operations.
// Priority-mutating operations keep the ordering invariant inside a single
// transaction.
type ProviderRepository interface {
	// Create assigns the next free priority when the provider carries none.
	Create(ctx context.Context, provider *models.Provider) error
	GetByID(ctx context.Context, id string) (*models.Provider, error)
	GetBySenderAddress(ctx context.Context, address string) (*models.Provider, error)
	List(ctx context.Context) ([]models.Provider, error)
	ListActive(ctx context.Context) ([]models.Provider, error)
	Update(ctx context.Context, provider *models.Provider) error
	PromoteToPrimary(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// Health counter updates; serialized per provider through single-row
	// atomic SQL updates.
	RecordSendSuccess(ctx context.Context, id string) error
	RecordSendFailure(ctx context.Context, id string, errorMessage string) error
	SetVerification(ctx context.Context, id string, verified bool, errorMessage string, testedAt time.Time) error
}

type RoutingRuleRepository interface {
	Upsert(ctx context.Context, rule *models.RoutingRule) error
	GetByTaskType(ctx context.Context, taskType string) (*models.RoutingRule, error)
	List(ctx context.Context) ([]models.RoutingRule, error)
	DeleteByTaskType(ctx context.Context, taskType string) error
}

type DeliveryJobRepository interface {
	Create(ctx context.Context, job *models.DeliveryJob) error
	GetByID(ctx context.Context, id string) (*models.DeliveryJob, error)
	Update(ctx context.Context, job *models.DeliveryJob) error
	// ListDue returns PENDING jobs whose next attempt time is at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.DeliveryJob, error)
	MarkCancelled(ctx context.Context, id string) error
	GetStatus(ctx context.Context, id string) (enum.DeliveryStatus, error)
}

type DeliveryLogRepository interface {
	Create(ctx context.Context, entry *models.DeliveryLogEntry) error
	ListByJob(ctx context.Context, jobID string) ([]models.DeliveryLogEntry, error)
	Search(ctx context.Context, taskType string, from, to *time.Time, limit, offset int) ([]models.DeliveryLogEntry, int64, error)
}
