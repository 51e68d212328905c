package enum

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

func (t DeliveryStatus) String() string {
	return string(t)
}

// IsTerminal reports whether a job in this status will never be attempted again.
func (t DeliveryStatus) IsTerminal() bool {
	return t == DeliveryStatusSent || t == DeliveryStatusFailed || t == DeliveryStatusCancelled
}

type AttemptOutcome string

const (
	AttemptOutcomeSent     AttemptOutcome = "sent"
	AttemptOutcomeFailed   AttemptOutcome = "failed"
	AttemptOutcomeDeferred AttemptOutcome = "deferred"
	AttemptOutcomeNoRoute  AttemptOutcome = "no_route"
)

func (t AttemptOutcome) String() string {
	return string(t)
}

type TransportErrorKind string

const (
	TransportErrAuthFailed       TransportErrorKind = "auth_failed"
	TransportErrHostUnreachable  TransportErrorKind = "host_unreachable"
	TransportErrTimeout          TransportErrorKind = "timeout"
	TransportErrTLS              TransportErrorKind = "tls_error"
	TransportErrInvalidRecipient TransportErrorKind = "invalid_recipient"
	TransportErrRateLimited      TransportErrorKind = "rate_limited"
	TransportErrUnknown          TransportErrorKind = "unknown"
)

func (t TransportErrorKind) String() string {
	return string(t)
}
