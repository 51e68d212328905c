package registry

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/packsmith/mailflow/interfaces"
	"github.com/packsmith/mailflow/internal/enum"
	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/tracing"
	"github.com/packsmith/mailflow/internal/utils"
	"github.com/packsmith/mailflow/internal/vault"
	"github.com/packsmith/mailflow/services/transport"
)

type registryService struct {
	providerRepository interfaces.ProviderRepository
	vault              *vault.Vault
	adapters           transport.AdapterSource
}

func NewRegistryService(
	providerRepository interfaces.ProviderRepository,
	v *vault.Vault,
	adapters transport.AdapterSource,
) interfaces.RegistryService {
	return &registryService{
		providerRepository: providerRepository,
		vault:              v,
		adapters:           adapters,
	}
}

// Register validates the spec, encrypts every secret field, and stores the
// provider; the repository assigns the next free priority atomically. The
// returned record has secrets masked.
func (s *registryService) Register(ctx context.Context, spec interfaces.ProviderSpec) (*models.Provider, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "registryService.Register")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := validateSpec(spec, false); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	address := utils.NormalizeEmailAddress(spec.SenderAddress)
	existing, err := s.providerRepository.GetBySenderAddress(ctx, address)
	if err != nil && !errors.Is(err, mailflow_errors.ErrProviderNotFound) {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if existing != nil {
		tracing.TraceErr(span, mailflow_errors.ErrDuplicateSender)
		return nil, mailflow_errors.ErrDuplicateSender
	}

	provider := &models.Provider{
		DisplayName:   spec.DisplayName,
		SenderAddress: address,
		SenderName:    spec.SenderName,
		TransportKind: spec.TransportKind,
		Family:        spec.Family,
		SmtpHost:      spec.SmtpHost,
		SmtpPort:      spec.SmtpPort,
		SmtpSecurity:  spec.SmtpSecurity,
		SmtpUsername:  spec.SmtpUsername,
		APIEndpoint:   spec.APIEndpoint,
		IsActive:      true,
	}

	if err := s.encryptSecrets(provider, spec); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := s.providerRepository.Create(ctx, provider); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	masked := provider.MaskSecrets()
	return &masked, nil
}

// Update re-encrypts only the secret fields present in the spec; empty secret
// fields keep the stored ciphertext. Priority is never touched here.
func (s *registryService) Update(ctx context.Context, id string, spec interfaces.ProviderSpec) (*models.Provider, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "registryService.Update")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, id)

	provider, err := s.providerRepository.GetByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := validateSpec(spec, true); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	address := utils.NormalizeEmailAddress(spec.SenderAddress)
	if address != "" && address != provider.SenderAddress {
		other, err := s.providerRepository.GetBySenderAddress(ctx, address)
		if err != nil && !errors.Is(err, mailflow_errors.ErrProviderNotFound) {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if other != nil && other.ID != id {
			tracing.TraceErr(span, mailflow_errors.ErrDuplicateSender)
			return nil, mailflow_errors.ErrDuplicateSender
		}
		provider.SenderAddress = address
	}

	if spec.DisplayName != "" {
		provider.DisplayName = spec.DisplayName
	}
	if spec.SenderName != "" {
		provider.SenderName = spec.SenderName
	}
	if spec.SmtpHost != "" {
		provider.SmtpHost = spec.SmtpHost
	}
	if spec.SmtpPort != 0 {
		provider.SmtpPort = spec.SmtpPort
	}
	if spec.SmtpSecurity != "" {
		provider.SmtpSecurity = spec.SmtpSecurity
	}
	if spec.SmtpUsername != "" {
		provider.SmtpUsername = spec.SmtpUsername
	}
	if spec.APIEndpoint != "" {
		provider.APIEndpoint = spec.APIEndpoint
	}

	if err := s.encryptSecrets(provider, spec); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := s.providerRepository.Update(ctx, provider); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	masked := provider.MaskSecrets()
	return &masked, nil
}

func (s *registryService) Promote(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "registryService.Promote")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, id)

	err := s.providerRepository.PromoteToPrimary(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

// Delete hard-deletes the provider. In-flight deliveries holding a resolved
// candidate list are unaffected; the next attempt re-resolves.
func (s *registryService) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "registryService.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, id)

	err := s.providerRepository.Delete(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (s *registryService) Get(ctx context.Context, id string) (*models.Provider, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "registryService.Get")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, id)

	provider, err := s.providerRepository.GetByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	masked := provider.MaskSecrets()
	return &masked, nil
}

func (s *registryService) List(ctx context.Context) ([]models.Provider, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "registryService.List")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	providers, err := s.providerRepository.List(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	masked := make([]models.Provider, 0, len(providers))
	for _, provider := range providers {
		masked = append(masked, provider.MaskSecrets())
	}
	return masked, nil
}

// Test runs the adapter's diagnostic check and records the verification
// outcome. It never touches the consecutive-failure counter; that belongs to
// real sends.
func (s *registryService) Test(ctx context.Context, id string) (*models.Provider, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "registryService.Test")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, id)

	provider, err := s.providerRepository.GetByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	adapter, err := s.adapters.AdapterFor(provider)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	testedAt := utils.Now()
	testErr := adapter.Test(ctx)
	if testErr != nil {
		tracing.TraceErr(span, testErr)
		if err := s.providerRepository.SetVerification(ctx, id, false, testErr.Error(), testedAt); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	} else {
		if err := s.providerRepository.SetVerification(ctx, id, true, "", testedAt); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}

	provider, err = s.providerRepository.GetByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	masked := provider.MaskSecrets()
	return &masked, nil
}

// encryptSecrets encrypts only the secret fields present in the spec.
func (s *registryService) encryptSecrets(provider *models.Provider, spec interfaces.ProviderSpec) error {
	if spec.SmtpPassword != "" {
		ciphertext, err := s.vault.Encrypt(spec.SmtpPassword)
		if err != nil {
			return err
		}
		provider.SmtpPassword = ciphertext
	}
	if spec.APIKey != "" {
		ciphertext, err := s.vault.Encrypt(spec.APIKey)
		if err != nil {
			return err
		}
		provider.APIKey = ciphertext
	}
	if spec.APISecret != "" {
		ciphertext, err := s.vault.Encrypt(spec.APISecret)
		if err != nil {
			return err
		}
		provider.APISecret = ciphertext
	}
	return nil
}

// validateSpec enforces the per-transport-kind required fields. On update,
// missing secrets mean "keep the stored ones".
func validateSpec(spec interfaces.ProviderSpec, isUpdate bool) error {
	if !isUpdate {
		if spec.SenderAddress == "" {
			return errors.Wrap(mailflow_errors.ErrInvalidProviderSpec, "sender address is required")
		}
		if err := utils.ValidateEmailAddress(spec.SenderAddress); err != nil {
			return errors.Wrap(mailflow_errors.ErrInvalidProviderSpec, err.Error())
		}
	}

	switch spec.TransportKind {
	case enum.TransportSMTP:
		if !isUpdate {
			if spec.SmtpHost == "" && spec.Family == enum.FamilyCustomSMTP {
				return errors.Wrap(mailflow_errors.ErrInvalidProviderSpec, "smtp host is required")
			}
			if spec.SmtpUsername == "" {
				return errors.Wrap(mailflow_errors.ErrInvalidProviderSpec, "smtp username is required")
			}
			if spec.SmtpPassword == "" {
				return errors.Wrap(mailflow_errors.ErrInvalidProviderSpec, "smtp password is required")
			}
		}
	case enum.TransportAPI:
		if !isUpdate && spec.APIKey == "" {
			return errors.Wrap(mailflow_errors.ErrInvalidProviderSpec, "api key is required")
		}
	case "":
		if !isUpdate {
			return errors.Wrap(mailflow_errors.ErrInvalidProviderSpec, "transport kind is required")
		}
	default:
		return errors.Wrapf(mailflow_errors.ErrInvalidProviderSpec, "unknown transport kind %q", spec.TransportKind)
	}

	return nil
}
