package transport

import (
	"context"
	"time"

	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/models"
)

// SendTimeout bounds every network operation an adapter performs.
const SendTimeout = 10 * time.Second

// Message is the transport-neutral outbound email. Content arrives rendered;
// adapters only encode and transmit it.
type Message struct {
	FromAddress  string
	FromName     string
	ToAddresses  []string
	CcAddresses  []string
	BccAddresses []string
	ReplyTo      string
	Subject      string
	BodyText     string
	BodyHTML     string
	Attachments  []models.DeliveryAttachment
}

// AllRecipients returns the full envelope recipient set.
func (m *Message) AllRecipients() []string {
	recipients := make([]string, 0, len(m.ToAddresses)+len(m.CcAddresses)+len(m.BccAddresses))
	recipients = append(recipients, m.ToAddresses...)
	recipients = append(recipients, m.CcAddresses...)
	recipients = append(recipients, m.BccAddresses...)
	return recipients
}

// Adapter is the capability set every provider family implements. Raw vendor
// errors never cross this boundary; they are classified into *Error first.
type Adapter interface {
	// Verify opens and authenticates a connection without sending mail.
	Verify(ctx context.Context) error
	// Send transmits the message.
	Send(ctx context.Context, message *Message) error
	// Test is the diagnostic check behind the registry's test operation.
	Test(ctx context.Context) error
}

// AdapterSource yields the adapter for a provider's transport configuration.
// Implemented by Factory; tests substitute scripted adapters.
type AdapterSource interface {
	AdapterFor(provider *models.Provider) (Adapter, error)
}

// Error carries the taxonomy kind alongside the underlying cause. Upstream
// logic branches on Kind, never on vendor error text.
type Error struct {
	Kind enum.TransportErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind enum.TransportErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the taxonomy kind from any error an adapter returned.
func KindOf(err error) enum.TransportErrorKind {
	if err == nil {
		return ""
	}
	if terr, ok := err.(*Error); ok {
		return terr.Kind
	}
	return enum.TransportErrUnknown
}
