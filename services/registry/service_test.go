package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packsmith/mailflow/interfaces"
	"github.com/packsmith/mailflow/internal/enum"
	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/utils"
	"github.com/packsmith/mailflow/internal/vault"
	"github.com/packsmith/mailflow/services/transport"
)

const testVaultKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// inMemoryProviderRepository mirrors the gorm repository's contract closely
// enough for service-level tests: case handling is the caller's job, Create
// assigns the next free priority atomically, priority renumbering is dense.
type inMemoryProviderRepository struct {
	mu        sync.Mutex
	providers map[string]*models.Provider
	nextID    int
}

func newInMemoryProviderRepository() *inMemoryProviderRepository {
	return &inMemoryProviderRepository{providers: make(map[string]*models.Provider)}
}

func (r *inMemoryProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	if provider.ID == "" {
		provider.ID = fmt.Sprintf("prov_%d", r.nextID)
	}
	if provider.Priority == 0 {
		max := 0
		for _, existing := range r.providers {
			if existing.Priority > max {
				max = existing.Priority
			}
		}
		provider.Priority = max + 1
	}
	clone := *provider
	r.providers[provider.ID] = &clone
	return nil
}

func (r *inMemoryProviderRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider, ok := r.providers[id]
	if !ok {
		return nil, mailflow_errors.ErrProviderNotFound
	}
	clone := *provider
	return &clone, nil
}

func (r *inMemoryProviderRepository) GetBySenderAddress(ctx context.Context, address string) (*models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, provider := range r.providers {
		if provider.SenderAddress == address {
			clone := *provider
			return &clone, nil
		}
	}
	return nil, mailflow_errors.ErrProviderNotFound
}

func (r *inMemoryProviderRepository) listLocked() []models.Provider {
	out := make([]models.Provider, 0, len(r.providers))
	for _, provider := range r.providers {
		out = append(out, *provider)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func (r *inMemoryProviderRepository) List(ctx context.Context) ([]models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.listLocked(), nil
}

func (r *inMemoryProviderRepository) ListActive(ctx context.Context) ([]models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Provider, 0, len(r.providers))
	for _, provider := range r.listLocked() {
		if provider.IsActive {
			out = append(out, provider)
		}
	}
	return out, nil
}

func (r *inMemoryProviderRepository) Update(ctx context.Context, provider *models.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[provider.ID]; !ok {
		return mailflow_errors.ErrProviderNotFound
	}
	clone := *provider
	r.providers[provider.ID] = &clone
	return nil
}

func (r *inMemoryProviderRepository) PromoteToPrimary(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.providers[id]
	if !ok {
		return mailflow_errors.ErrProviderNotFound
	}
	ordered := r.listLocked()
	target.Priority = 1
	next := 2
	for _, provider := range ordered {
		if provider.ID == id {
			continue
		}
		r.providers[provider.ID].Priority = next
		next++
	}
	return nil
}

func (r *inMemoryProviderRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[id]; !ok {
		return mailflow_errors.ErrProviderNotFound
	}
	delete(r.providers, id)
	return nil
}

func (r *inMemoryProviderRepository) RecordSendSuccess(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider, ok := r.providers[id]
	if !ok {
		return mailflow_errors.ErrProviderNotFound
	}
	provider.ConsecutiveFailures = 0
	provider.LastErrorMessage = ""
	return nil
}

func (r *inMemoryProviderRepository) RecordSendFailure(ctx context.Context, id string, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider, ok := r.providers[id]
	if !ok {
		return mailflow_errors.ErrProviderNotFound
	}
	provider.ConsecutiveFailures++
	provider.LastErrorMessage = errorMessage
	return nil
}

func (r *inMemoryProviderRepository) SetVerification(ctx context.Context, id string, verified bool, errorMessage string, testedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider, ok := r.providers[id]
	if !ok {
		return mailflow_errors.ErrProviderNotFound
	}
	provider.IsVerified = verified
	provider.LastErrorMessage = errorMessage
	provider.LastTestAt = &testedAt
	if verified {
		provider.ConsecutiveFailures = 0
	}
	return nil
}

var _ interfaces.ProviderRepository = (*inMemoryProviderRepository)(nil)

// scriptedAdapter returns canned results for every check.
type scriptedAdapter struct {
	verifyErr error
	sendErr   error
	testErr   error
}

func (a *scriptedAdapter) Verify(ctx context.Context) error { return a.verifyErr }
func (a *scriptedAdapter) Send(ctx context.Context, message *transport.Message) error {
	return a.sendErr
}
func (a *scriptedAdapter) Test(ctx context.Context) error { return a.testErr }

type scriptedAdapterSource struct {
	adapter transport.Adapter
	err     error
}

func (s *scriptedAdapterSource) AdapterFor(provider *models.Provider) (transport.Adapter, error) {
	return s.adapter, s.err
}

func newTestService(t *testing.T, adapters transport.AdapterSource) (interfaces.RegistryService, *inMemoryProviderRepository, *vault.Vault) {
	t.Helper()
	v, err := vault.New(&vault.Config{Key: testVaultKey})
	require.NoError(t, err)
	repo := newInMemoryProviderRepository()
	if adapters == nil {
		adapters = &scriptedAdapterSource{adapter: &scriptedAdapter{}}
	}
	return NewRegistryService(repo, v, adapters), repo, v
}

func smtpSpec(address string) interfaces.ProviderSpec {
	return interfaces.ProviderSpec{
		DisplayName:   "Primary SMTP",
		SenderAddress: address,
		SenderName:    "Notifications",
		TransportKind: enum.TransportSMTP,
		Family:        enum.FamilyCustomSMTP,
		SmtpHost:      "mail.example.com",
		SmtpPort:      587,
		SmtpSecurity:  enum.EmailSecurityTLS,
		SmtpUsername:  "notify@example.com",
		SmtpPassword:  "app-password",
	}
}

func TestRegister_EncryptsAndMasksSecrets(t *testing.T) {
	// Arrange
	service, repo, v := newTestService(t, nil)
	ctx := context.Background()

	// Act
	created, err := service.Register(ctx, smtpSpec("notify@example.com"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, utils.Redacted, created.SmtpPassword)
	assert.True(t, created.IsActive)
	assert.Equal(t, 1, created.Priority)

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "app-password", stored.SmtpPassword)
	assert.NotEqual(t, utils.Redacted, stored.SmtpPassword)

	plaintext, err := v.Decrypt(stored.SmtpPassword)
	require.NoError(t, err)
	assert.Equal(t, "app-password", plaintext)
}

func TestRegister_DuplicateSenderIsCaseInsensitive(t *testing.T) {
	// Arrange
	service, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := service.Register(ctx, smtpSpec("Notify@Example.com"))
	require.NoError(t, err)

	// Act
	_, err = service.Register(ctx, smtpSpec("notify@example.com"))

	// Assert
	assert.ErrorIs(t, err, mailflow_errors.ErrDuplicateSender)
}

func TestRegister_AssignsIncreasingPriorities(t *testing.T) {
	// Arrange
	service, _, _ := newTestService(t, nil)
	ctx := context.Background()

	// Act
	first, err := service.Register(ctx, smtpSpec("a@example.com"))
	require.NoError(t, err)
	second, err := service.Register(ctx, smtpSpec("b@example.com"))
	require.NoError(t, err)
	third, err := service.Register(ctx, smtpSpec("c@example.com"))
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 1, first.Priority)
	assert.Equal(t, 2, second.Priority)
	assert.Equal(t, 3, third.Priority)
}

func TestRegister_ConcurrentRegistrationsGetDistinctPriorities(t *testing.T) {
	// Arrange
	service, _, _ := newTestService(t, nil)
	ctx := context.Background()
	const registrations = 8

	// Act: register from several goroutines at once
	var wg sync.WaitGroup
	for i := 0; i < registrations; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := service.Register(ctx, smtpSpec(fmt.Sprintf("sender%d@example.com", n)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Assert: priorities are exactly 1..N with no duplicates
	providers, err := service.List(ctx)
	require.NoError(t, err)
	require.Len(t, providers, registrations)
	for i, provider := range providers {
		assert.Equal(t, i+1, provider.Priority)
	}
}

func TestRegister_RejectsIncompleteSpec(t *testing.T) {
	service, _, _ := newTestService(t, nil)
	ctx := context.Background()

	t.Run("missing sender address", func(t *testing.T) {
		spec := smtpSpec("")
		_, err := service.Register(ctx, spec)
		assert.ErrorIs(t, err, mailflow_errors.ErrInvalidProviderSpec)
	})

	t.Run("smtp without password", func(t *testing.T) {
		spec := smtpSpec("x@example.com")
		spec.SmtpPassword = ""
		_, err := service.Register(ctx, spec)
		assert.ErrorIs(t, err, mailflow_errors.ErrInvalidProviderSpec)
	})

	t.Run("api without key", func(t *testing.T) {
		spec := interfaces.ProviderSpec{
			SenderAddress: "x@example.com",
			TransportKind: enum.TransportAPI,
			Family:        enum.FamilySendgrid,
		}
		_, err := service.Register(ctx, spec)
		assert.ErrorIs(t, err, mailflow_errors.ErrInvalidProviderSpec)
	})
}

func TestUpdate_KeepsStoredSecretWhenOmitted(t *testing.T) {
	// Arrange
	service, repo, _ := newTestService(t, nil)
	ctx := context.Background()

	created, err := service.Register(ctx, smtpSpec("notify@example.com"))
	require.NoError(t, err)
	before, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)

	// Act: update the display name only
	_, err = service.Update(ctx, created.ID, interfaces.ProviderSpec{
		DisplayName:   "Renamed",
		TransportKind: enum.TransportSMTP,
	})

	// Assert
	require.NoError(t, err)
	after, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", after.DisplayName)
	assert.Equal(t, before.SmtpPassword, after.SmtpPassword)
	assert.Equal(t, before.Priority, after.Priority)
}

func TestPromote_MovesTargetToFrontAndRenumbersDensely(t *testing.T) {
	// Arrange: three providers at priorities 1, 2, 3
	service, _, _ := newTestService(t, nil)
	ctx := context.Background()

	p1, err := service.Register(ctx, smtpSpec("a@example.com"))
	require.NoError(t, err)
	p2, err := service.Register(ctx, smtpSpec("b@example.com"))
	require.NoError(t, err)
	p3, err := service.Register(ctx, smtpSpec("c@example.com"))
	require.NoError(t, err)

	// Act: promote the middle one
	require.NoError(t, service.Promote(ctx, p2.ID))

	// Assert: p2 first, the rest keep their relative order, numbering dense
	providers, err := service.List(ctx)
	require.NoError(t, err)
	require.Len(t, providers, 3)
	assert.Equal(t, p2.ID, providers[0].ID)
	assert.Equal(t, 1, providers[0].Priority)
	assert.Equal(t, p1.ID, providers[1].ID)
	assert.Equal(t, 2, providers[1].Priority)
	assert.Equal(t, p3.ID, providers[2].ID)
	assert.Equal(t, 3, providers[2].Priority)
}

func TestTest_RecordsVerificationWithoutTouchingFailureStreak(t *testing.T) {
	// Arrange: a provider with an existing failure streak
	source := &scriptedAdapterSource{adapter: &scriptedAdapter{}}
	service, repo, _ := newTestService(t, source)
	ctx := context.Background()

	created, err := service.Register(ctx, smtpSpec("notify@example.com"))
	require.NoError(t, err)
	require.NoError(t, repo.RecordSendFailure(ctx, created.ID, "550 mailbox unavailable"))
	require.NoError(t, repo.RecordSendFailure(ctx, created.ID, "550 mailbox unavailable"))

	t.Run("failed test marks unverified", func(t *testing.T) {
		source.adapter = &scriptedAdapter{testErr: transport.NewError(enum.TransportErrAuthFailed, assert.AnError)}

		tested, err := service.Test(ctx, created.ID)

		require.NoError(t, err)
		assert.False(t, tested.IsVerified)
		assert.NotEmpty(t, tested.LastErrorMessage)
		assert.NotNil(t, tested.LastTestAt)
	})

	t.Run("passing test marks verified and resets the streak", func(t *testing.T) {
		source.adapter = &scriptedAdapter{}

		tested, err := service.Test(ctx, created.ID)

		require.NoError(t, err)
		assert.True(t, tested.IsVerified)
		assert.Empty(t, tested.LastErrorMessage)
		assert.Zero(t, tested.ConsecutiveFailures)
	})
}

func TestGet_MasksSecrets(t *testing.T) {
	// Arrange
	service, _, _ := newTestService(t, nil)
	ctx := context.Background()

	spec := interfaces.ProviderSpec{
		SenderAddress: "api@example.com",
		TransportKind: enum.TransportAPI,
		Family:        enum.FamilySendgrid,
		APIKey:        "SG.secret-key",
	}
	created, err := service.Register(ctx, spec)
	require.NoError(t, err)

	// Act
	fetched, err := service.Get(ctx, created.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, utils.Redacted, fetched.APIKey)
}
