package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/packsmith/mailflow/internal/utils"
)

// RoutingRule overrides the global priority order for one task type with an
// explicit ordered provider list. No rule for a task type means "use the
// priority order of all active providers".
type RoutingRule struct {
	ID          string         `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TaskType    string         `gorm:"column:task_type;type:varchar(100);uniqueIndex;not null" json:"taskType"`
	ProviderIDs pq.StringArray `gorm:"column:provider_ids;type:text[];not null" json:"providerIds"`
	CreatedAt   time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (RoutingRule) TableName() string {
	return "routing_rules"
}

func (m *RoutingRule) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("rule", 16)
	}
	return nil
}
