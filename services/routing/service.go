package routing

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/packsmith/mailflow/interfaces"
	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/tracing"
)

type routingService struct {
	providerRepository    interfaces.ProviderRepository
	routingRuleRepository interfaces.RoutingRuleRepository
}

func NewRoutingService(
	providerRepository interfaces.ProviderRepository,
	routingRuleRepository interfaces.RoutingRuleRepository,
) interfaces.RoutingService {
	return &routingService{
		providerRepository:    providerRepository,
		routingRuleRepository: routingRuleRepository,
	}
}

// ResolveCandidates returns the ordered provider list for a task type: the
// explicit rule when one exists, otherwise all active providers by ascending
// priority. Ids that no longer resolve to an active provider are dropped
// silently. An empty result means "no route" and is the caller's signal for a
// non-retryable configuration failure. Resolution runs fresh on every attempt
// so administrator edits apply to the next retry.
func (s *routingService) ResolveCandidates(ctx context.Context, taskType string) ([]models.Provider, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "routingService.ResolveCandidates")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag(tracing.SpanTagTaskType, taskType)

	rule, err := s.routingRuleRepository.GetByTaskType(ctx, taskType)
	if err != nil && !errors.Is(err, mailflow_errors.ErrRoutingRuleNotFound) {
		tracing.TraceErr(span, err)
		return nil, err
	}

	active, err := s.providerRepository.ListActive(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if rule == nil {
		return active, nil
	}

	byID := make(map[string]models.Provider, len(active))
	for _, provider := range active {
		byID[provider.ID] = provider
	}

	candidates := make([]models.Provider, 0, len(rule.ProviderIDs))
	for _, id := range rule.ProviderIDs {
		if provider, ok := byID[id]; ok {
			candidates = append(candidates, provider)
		}
	}

	return candidates, nil
}

func (s *routingService) SetRule(ctx context.Context, taskType string, providerIDs []string) (*models.RoutingRule, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "routingService.SetRule")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag(tracing.SpanTagTaskType, taskType)

	if taskType == "" || len(providerIDs) == 0 {
		return nil, mailflow_errors.ErrInvalidInput
	}

	// reject ids that do not exist at all; inactive is tolerated since the
	// rule outlives provider toggles
	for _, id := range providerIDs {
		if _, err := s.providerRepository.GetByID(ctx, id); err != nil {
			tracing.TraceErr(span, err)
			return nil, errors.Wrap(err, id)
		}
	}

	rule := &models.RoutingRule{
		TaskType:    taskType,
		ProviderIDs: providerIDs,
	}
	if err := s.routingRuleRepository.Upsert(ctx, rule); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return rule, nil
}

func (s *routingService) GetRule(ctx context.Context, taskType string) (*models.RoutingRule, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "routingService.GetRule")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.routingRuleRepository.GetByTaskType(ctx, taskType)
}

func (s *routingService) ListRules(ctx context.Context) ([]models.RoutingRule, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "routingService.ListRules")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.routingRuleRepository.List(ctx)
}

func (s *routingService) DeleteRule(ctx context.Context, taskType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "routingService.DeleteRule")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.routingRuleRepository.DeleteByTaskType(ctx, taskType)
}
