package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/utils"
)

// DeliveryJob is one unit of send work. Content arrives fully rendered; the
// engine never touches templates.
type DeliveryJob struct {
	ID       string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TaskType string `gorm:"column:task_type;type:varchar(100);index;not null" json:"taskType"`
	// Rendered content
	Subject      string         `gorm:"column:subject;type:text;not null" json:"subject"`
	BodyText     string         `gorm:"column:body_text;type:text" json:"bodyText"`
	BodyHTML     string         `gorm:"column:body_html;type:text" json:"bodyHtml"`
	ToAddresses  pq.StringArray `gorm:"column:to_addresses;type:text[];not null" json:"toAddresses"`
	CcAddresses  pq.StringArray `gorm:"column:cc_addresses;type:text[]" json:"ccAddresses,omitempty"`
	BccAddresses pq.StringArray `gorm:"column:bcc_addresses;type:text[]" json:"bccAddresses,omitempty"`
	// Traceability back to the business entity that requested the send
	ReferenceType string `gorm:"column:reference_type;type:varchar(100)" json:"referenceType,omitempty"`
	ReferenceID   string `gorm:"column:reference_id;type:varchar(50)" json:"referenceId,omitempty"`
	// Scheduling state
	Status        enum.DeliveryStatus `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	AttemptCount  int                 `gorm:"column:attempt_count;not null;default:0" json:"attemptCount"`
	NextAttemptAt *time.Time          `gorm:"column:next_attempt_at;type:timestamp;index" json:"nextAttemptAt"`
	SentAt        *time.Time          `gorm:"column:sent_at;type:timestamp" json:"sentAt"`
	StatusDetail  string              `gorm:"column:status_detail;type:text" json:"statusDetail,omitempty"`
	// Standard timestamps
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`

	Attachments []DeliveryAttachment `gorm:"foreignKey:JobID" json:"attachments,omitempty"`
}

func (DeliveryJob) TableName() string {
	return "delivery_jobs"
}

func (m *DeliveryJob) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("job", 16)
	}
	return nil
}

// DeliveryAttachment carries a small rendered document (quote or invoice PDF)
// inline on the job row.
type DeliveryAttachment struct {
	ID          string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	JobID       string `gorm:"column:job_id;type:varchar(50);index;not null" json:"jobId"`
	Filename    string `gorm:"column:filename;type:varchar(255);not null" json:"filename"`
	ContentType string `gorm:"column:content_type;type:varchar(100);not null" json:"contentType"`
	// base64 encoded payload
	Content string `gorm:"column:content;type:text;not null" json:"content"`
	Size    int    `gorm:"column:size;not null" json:"size"`
}

func (DeliveryAttachment) TableName() string {
	return "delivery_attachments"
}

func (m *DeliveryAttachment) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("att", 16)
	}
	return nil
}
