package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/utils"
)

// Provider is a configured sending identity: an SMTP account or an API-keyed
// vendor account. All secret columns hold vault ciphertext, never plaintext.
type Provider struct {
	ID            string              `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	DisplayName   string              `gorm:"column:display_name;type:varchar(255)" json:"displayName"`
	SenderAddress string              `gorm:"column:sender_address;type:varchar(255);uniqueIndex;not null" json:"senderAddress"`
	SenderName    string              `gorm:"column:sender_name;type:varchar(255)" json:"senderName"`
	TransportKind enum.TransportKind  `gorm:"column:transport_kind;type:varchar(20);not null" json:"transportKind"`
	Family        enum.ProviderFamily `gorm:"column:family;type:varchar(50);not null" json:"family"`
	// SMTP configuration
	SmtpHost     string             `gorm:"column:smtp_host;type:varchar(255)" json:"smtpHost,omitempty"`
	SmtpPort     int                `gorm:"column:smtp_port" json:"smtpPort,omitempty"`
	SmtpSecurity enum.EmailSecurity `gorm:"column:smtp_security;type:varchar(20)" json:"smtpSecurity,omitempty"`
	SmtpUsername string             `gorm:"column:smtp_username;type:varchar(255)" json:"smtpUsername,omitempty"`
	SmtpPassword string             `gorm:"column:smtp_password;type:text" json:"smtpPassword,omitempty"`
	// API configuration
	APIKey      string `gorm:"column:api_key;type:text" json:"apiKey,omitempty"`
	APISecret   string `gorm:"column:api_secret;type:text" json:"apiSecret,omitempty"`
	APIEndpoint string `gorm:"column:api_endpoint;type:varchar(255)" json:"apiEndpoint,omitempty"`
	// Failover ordering; lower is tried first, enforced unique by the index
	Priority int  `gorm:"column:priority;not null;uniqueIndex" json:"priority"`
	IsActive bool `gorm:"column:is_active;not null;default:true" json:"isActive"`
	// Health
	IsVerified          bool       `gorm:"column:is_verified;not null;default:false" json:"isVerified"`
	LastTestAt          *time.Time `gorm:"column:last_test_at;type:timestamp" json:"lastTestAt"`
	LastErrorMessage    string     `gorm:"column:last_error_message;type:text" json:"lastErrorMessage"`
	ConsecutiveFailures int        `gorm:"column:consecutive_failures;not null;default:0" json:"consecutiveFailures"`
	// Standard timestamps
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Provider) TableName() string {
	return "providers"
}

func (m *Provider) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("prov", 16)
	}
	return nil
}

// MaskSecrets replaces secret ciphertext with a fixed redaction marker so the
// record can leave the engine. Returns a copy; the stored record is untouched.
func (m Provider) MaskSecrets() Provider {
	if m.SmtpPassword != "" {
		m.SmtpPassword = utils.Redacted
	}
	if m.APIKey != "" {
		m.APIKey = utils.Redacted
	}
	if m.APISecret != "" {
		m.APISecret = utils.Redacted
	}
	return m
}
