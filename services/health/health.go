package health

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/packsmith/mailflow/interfaces"
	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/tracing"
)

// criticalFailureThreshold is the consecutive-failure count above which a
// provider is considered critical.
const criticalFailureThreshold = 3

// StatusOf derives a provider's live health label from its stored fields.
// This is the single place the thresholds live; it is recomputed on read and
// never persisted.
func StatusOf(provider *models.Provider) enum.HealthStatus {
	switch {
	case !provider.IsVerified:
		return enum.HealthStatusError
	case provider.ConsecutiveFailures > criticalFailureThreshold:
		return enum.HealthStatusCritical
	case provider.ConsecutiveFailures > 0:
		return enum.HealthStatusWarning
	default:
		return enum.HealthStatusHealthy
	}
}

// Tracker records send outcomes against provider health counters. A send
// success resets the failure streak; a send failure increments it and stores
// the error detail. Neither touches IsVerified, which only explicit tests and
// registration flip.
type Tracker struct {
	providerRepository interfaces.ProviderRepository
}

func NewTracker(providerRepository interfaces.ProviderRepository) *Tracker {
	return &Tracker{providerRepository: providerRepository}
}

func (t *Tracker) RecordSuccess(ctx context.Context, providerID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Tracker.RecordSuccess")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProvider(span, providerID)

	err := t.providerRepository.RecordSendSuccess(ctx, providerID)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (t *Tracker) RecordFailure(ctx context.Context, providerID string, errorMessage string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Tracker.RecordFailure")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProvider(span, providerID)

	err := t.providerRepository.RecordSendFailure(ctx, providerID, errorMessage)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}
