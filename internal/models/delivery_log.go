package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/utils"
)

// DeliveryLogEntry is an immutable per-attempt record. One row per candidate
// provider tried (or one no_route row when routing produced no candidates).
// Rows are never updated or deleted.
type DeliveryLogEntry struct {
	ID          string              `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	JobID       string              `gorm:"column:job_id;type:varchar(50);index;not null" json:"jobId"`
	TaskType    string              `gorm:"column:task_type;type:varchar(100);index:idx_delivery_logs_task_created;not null" json:"taskType"`
	ProviderID  string              `gorm:"column:provider_id;type:varchar(50);index" json:"providerId,omitempty"`
	Outcome     enum.AttemptOutcome `gorm:"column:outcome;type:varchar(20);not null" json:"outcome"`
	ErrorKind   string              `gorm:"column:error_kind;type:varchar(30)" json:"errorKind,omitempty"`
	ErrorDetail string              `gorm:"column:error_detail;type:text" json:"errorDetail,omitempty"`
	CreatedAt   time.Time           `gorm:"column:created_at;type:timestamp;default:current_timestamp;index:idx_delivery_logs_task_created" json:"createdAt"`
}

func (DeliveryLogEntry) TableName() string {
	return "delivery_logs"
}

func (m *DeliveryLogEntry) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("dlog", 16)
	}
	return nil
}
