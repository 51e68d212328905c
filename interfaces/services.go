package interfaces

import (
	"context"

	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/models"
)

// ProviderSpec is the inbound shape for registering or updating a provider.
// Secret fields arrive in plaintext and are encrypted before they are stored;
// on update, empty secret fields mean "keep the stored ciphertext".
type ProviderSpec struct {
	DisplayName   string              `json:"displayName"`
	SenderAddress string              `json:"senderAddress"`
	SenderName    string              `json:"senderName"`
	TransportKind enum.TransportKind  `json:"transportKind"`
	Family        enum.ProviderFamily `json:"family"`
	SmtpHost      string              `json:"smtpHost,omitempty"`
	SmtpPort      int                 `json:"smtpPort,omitempty"`
	SmtpSecurity  enum.EmailSecurity  `json:"smtpSecurity,omitempty"`
	SmtpUsername  string              `json:"smtpUsername,omitempty"`
	SmtpPassword  string              `json:"smtpPassword,omitempty"`
	APIKey        string              `json:"apiKey,omitempty"`
	APISecret     string              `json:"apiSecret,omitempty"`
	APIEndpoint   string              `json:"apiEndpoint,omitempty"`
}

// RegistryService owns provider configuration. Every record it returns has
// secrets masked.
type RegistryService interface {
	Register(ctx context.Context, spec ProviderSpec) (*models.Provider, error)
	Update(ctx context.Context, id string, spec ProviderSpec) (*models.Provider, error)
	Promote(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Provider, error)
	List(ctx context.Context) ([]models.Provider, error)
	Test(ctx context.Context, id string) (*models.Provider, error)
}

// RoutingService resolves the ordered provider candidate list for a task type.
type RoutingService interface {
	ResolveCandidates(ctx context.Context, taskType string) ([]models.Provider, error)
	SetRule(ctx context.Context, taskType string, providerIDs []string) (*models.RoutingRule, error)
	GetRule(ctx context.Context, taskType string) (*models.RoutingRule, error)
	ListRules(ctx context.Context) ([]models.RoutingRule, error)
	DeleteRule(ctx context.Context, taskType string) error
}

// EnqueueRequest is the single inbound surface business features use to send
// mail. Content is already rendered.
type EnqueueRequest struct {
	TaskType      string                      `json:"taskType"`
	Subject       string                      `json:"subject"`
	BodyText      string                      `json:"bodyText,omitempty"`
	BodyHTML      string                      `json:"bodyHtml,omitempty"`
	To            []string                    `json:"to"`
	Cc            []string                    `json:"cc,omitempty"`
	Bcc           []string                    `json:"bcc,omitempty"`
	Attachments   []models.DeliveryAttachment `json:"attachments,omitempty"`
	ReferenceType string                      `json:"referenceType,omitempty"`
	ReferenceID   string                      `json:"referenceId,omitempty"`
}

// DispatchService accepts send requests and drives attempts with failover and
// backoff on a background worker loop. Enqueue returns as soon as the job is
// persisted and queued.
type DispatchService interface {
	Enqueue(ctx context.Context, request EnqueueRequest) (*models.DeliveryJob, error)
	Cancel(ctx context.Context, jobID string) error
	Start(ctx context.Context) error
	Stop()
	// RecoverPending reloads due PENDING jobs into the in-memory queue.
	RecoverPending(ctx context.Context) (int, error)
}

// DeliveryEventPublisher notifies callers about terminal job outcomes.
type DeliveryEventPublisher interface {
	PublishDeliveryEvent(ctx context.Context, job *models.DeliveryJob) error
	Close() error
}
