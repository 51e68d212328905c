package routing

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packsmith/mailflow/interfaces"
	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
	"github.com/packsmith/mailflow/internal/models"
)

// fakeProviderRepository serves a fixed provider set; only the read paths the
// routing service touches are meaningful.
type fakeProviderRepository struct {
	providers []models.Provider
}

func (r *fakeProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	r.providers = append(r.providers, *provider)
	return nil
}

func (r *fakeProviderRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	for i := range r.providers {
		if r.providers[i].ID == id {
			clone := r.providers[i]
			return &clone, nil
		}
	}
	return nil, mailflow_errors.ErrProviderNotFound
}

func (r *fakeProviderRepository) GetBySenderAddress(ctx context.Context, address string) (*models.Provider, error) {
	return nil, mailflow_errors.ErrProviderNotFound
}

func (r *fakeProviderRepository) List(ctx context.Context) ([]models.Provider, error) {
	out := append([]models.Provider(nil), r.providers...)
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (r *fakeProviderRepository) ListActive(ctx context.Context) ([]models.Provider, error) {
	all, _ := r.List(ctx)
	out := make([]models.Provider, 0, len(all))
	for _, provider := range all {
		if provider.IsActive {
			out = append(out, provider)
		}
	}
	return out, nil
}

func (r *fakeProviderRepository) Update(ctx context.Context, provider *models.Provider) error {
	return nil
}
func (r *fakeProviderRepository) PromoteToPrimary(ctx context.Context, id string) error { return nil }
func (r *fakeProviderRepository) Delete(ctx context.Context, id string) error           { return nil }
func (r *fakeProviderRepository) RecordSendSuccess(ctx context.Context, id string) error {
	return nil
}
func (r *fakeProviderRepository) RecordSendFailure(ctx context.Context, id string, errorMessage string) error {
	return nil
}
func (r *fakeProviderRepository) SetVerification(ctx context.Context, id string, verified bool, errorMessage string, testedAt time.Time) error {
	return nil
}

var _ interfaces.ProviderRepository = (*fakeProviderRepository)(nil)

type fakeRuleRepository struct {
	rules map[string]*models.RoutingRule
}

func newFakeRuleRepository() *fakeRuleRepository {
	return &fakeRuleRepository{rules: make(map[string]*models.RoutingRule)}
}

func (r *fakeRuleRepository) Upsert(ctx context.Context, rule *models.RoutingRule) error {
	clone := *rule
	r.rules[rule.TaskType] = &clone
	return nil
}

func (r *fakeRuleRepository) GetByTaskType(ctx context.Context, taskType string) (*models.RoutingRule, error) {
	rule, ok := r.rules[taskType]
	if !ok {
		return nil, mailflow_errors.ErrRoutingRuleNotFound
	}
	clone := *rule
	return &clone, nil
}

func (r *fakeRuleRepository) List(ctx context.Context) ([]models.RoutingRule, error) {
	out := make([]models.RoutingRule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, *rule)
	}
	return out, nil
}

func (r *fakeRuleRepository) DeleteByTaskType(ctx context.Context, taskType string) error {
	delete(r.rules, taskType)
	return nil
}

var _ interfaces.RoutingRuleRepository = (*fakeRuleRepository)(nil)

func provider(id string, priority int, active bool) models.Provider {
	return models.Provider{ID: id, Priority: priority, IsActive: active, SenderAddress: id + "@example.com"}
}

func candidateIDs(candidates []models.Provider) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestResolveCandidates_DefaultPriorityOrder(t *testing.T) {
	// Arrange: no rule for the task type
	providers := &fakeProviderRepository{providers: []models.Provider{
		provider("prov_b", 2, true),
		provider("prov_a", 1, true),
		provider("prov_c", 3, true),
	}}
	service := NewRoutingService(providers, newFakeRuleRepository())

	// Act
	candidates, err := service.ResolveCandidates(context.Background(), "invoice")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"prov_a", "prov_b", "prov_c"}, candidateIDs(candidates))
}

func TestResolveCandidates_RuleOverridesPriorityOrder(t *testing.T) {
	// Arrange
	providers := &fakeProviderRepository{providers: []models.Provider{
		provider("prov_a", 1, true),
		provider("prov_b", 2, true),
		provider("prov_c", 3, true),
	}}
	rules := newFakeRuleRepository()
	service := NewRoutingService(providers, rules)

	_, err := service.SetRule(context.Background(), "invoice", []string{"prov_c", "prov_a"})
	require.NoError(t, err)

	// Act
	candidates, err := service.ResolveCandidates(context.Background(), "invoice")

	// Assert: rule order wins, unlisted providers are excluded
	require.NoError(t, err)
	assert.Equal(t, []string{"prov_c", "prov_a"}, candidateIDs(candidates))
}

func TestResolveCandidates_DropsDeadAndInactiveRuleEntries(t *testing.T) {
	// Arrange: the rule references a deleted provider and a deactivated one
	providers := &fakeProviderRepository{providers: []models.Provider{
		provider("prov_a", 1, true),
		provider("prov_b", 2, false),
	}}
	rules := newFakeRuleRepository()
	require.NoError(t, rules.Upsert(context.Background(), &models.RoutingRule{
		TaskType:    "invoice",
		ProviderIDs: []string{"prov_gone", "prov_b", "prov_a"},
	}))
	service := NewRoutingService(providers, rules)

	// Act
	candidates, err := service.ResolveCandidates(context.Background(), "invoice")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"prov_a"}, candidateIDs(candidates))
}

func TestResolveCandidates_NoProvidersMeansNoRoute(t *testing.T) {
	// Arrange
	service := NewRoutingService(&fakeProviderRepository{}, newFakeRuleRepository())

	// Act
	candidates, err := service.ResolveCandidates(context.Background(), "invoice")

	// Assert: empty slice, not an error; the dispatcher decides what "no
	// route" means for the job
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSetRule_RejectsUnknownProvider(t *testing.T) {
	// Arrange
	providers := &fakeProviderRepository{providers: []models.Provider{provider("prov_a", 1, true)}}
	service := NewRoutingService(providers, newFakeRuleRepository())

	// Act
	_, err := service.SetRule(context.Background(), "invoice", []string{"prov_a", "prov_missing"})

	// Assert
	assert.ErrorIs(t, err, mailflow_errors.ErrProviderNotFound)
}

func TestSetRule_AllowsInactiveProvider(t *testing.T) {
	// Arrange: rules outlive provider toggles, so inactive ids are accepted
	providers := &fakeProviderRepository{providers: []models.Provider{provider("prov_a", 1, false)}}
	service := NewRoutingService(providers, newFakeRuleRepository())

	// Act
	rule, err := service.SetRule(context.Background(), "invoice", []string{"prov_a"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"prov_a"}, []string(rule.ProviderIDs))
}

func TestSetRule_RejectsEmptyInput(t *testing.T) {
	service := NewRoutingService(&fakeProviderRepository{}, newFakeRuleRepository())

	_, err := service.SetRule(context.Background(), "", []string{"prov_a"})
	assert.ErrorIs(t, err, mailflow_errors.ErrInvalidInput)

	_, err = service.SetRule(context.Background(), "invoice", nil)
	assert.ErrorIs(t, err, mailflow_errors.ErrInvalidInput)
}

func TestDeleteRule_FallsBackToPriorityOrder(t *testing.T) {
	// Arrange
	providers := &fakeProviderRepository{providers: []models.Provider{
		provider("prov_a", 1, true),
		provider("prov_b", 2, true),
	}}
	rules := newFakeRuleRepository()
	service := NewRoutingService(providers, rules)

	_, err := service.SetRule(context.Background(), "invoice", []string{"prov_b"})
	require.NoError(t, err)

	// Act
	require.NoError(t, service.DeleteRule(context.Background(), "invoice"))

	// Assert
	candidates, err := service.ResolveCandidates(context.Background(), "invoice")
	require.NoError(t, err)
	assert.Equal(t, []string{"prov_a", "prov_b"}, candidateIDs(candidates))
}
