package transport

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/packsmith/mailflow/internal/enum"
	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/vault"
)

// Factory builds the adapter for a provider. Selection is a pure function of
// the provider's transport kind and family; the vault decrypts credentials at
// the last possible moment, and decryption failures surface as configuration
// errors, never as transport errors.
type Factory struct {
	vault *vault.Vault
}

func NewFactory(v *vault.Vault) *Factory {
	return &Factory{vault: v}
}

func (f *Factory) AdapterFor(provider *models.Provider) (Adapter, error) {
	if provider == nil {
		return nil, mailflow_errors.ErrInvalidInput
	}

	switch provider.TransportKind {
	case enum.TransportSMTP:
		return f.smtpAdapter(provider)
	case enum.TransportAPI:
		return f.apiAdapter(provider)
	default:
		return nil, errors.Wrapf(mailflow_errors.ErrInvalidProviderSpec, "unsupported transport kind %q", provider.TransportKind)
	}
}

func (f *Factory) smtpAdapter(provider *models.Provider) (Adapter, error) {
	password, err := f.vault.Decrypt(provider.SmtpPassword)
	if err != nil {
		return nil, errors.Wrapf(err, "provider %s smtp password", provider.ID)
	}

	host, port, security := smtpDefaults(provider)
	return NewSMTPAdapter(host, port, security, provider.SmtpUsername, password), nil
}

func (f *Factory) apiAdapter(provider *models.Provider) (Adapter, error) {
	apiKey, err := f.vault.Decrypt(provider.APIKey)
	if err != nil {
		return nil, errors.Wrapf(err, "provider %s api key", provider.ID)
	}

	switch provider.Family {
	case enum.FamilySendgrid:
		return NewSendGridAdapter(apiKey, provider.APIEndpoint), nil
	case enum.FamilyMailgun:
		return NewMailgunAdapter(apiKey, senderDomain(provider.SenderAddress), ""), nil
	case enum.FamilySES:
		apiSecret, err := f.vault.Decrypt(provider.APISecret)
		if err != nil {
			return nil, errors.Wrapf(err, "provider %s api secret", provider.ID)
		}
		return NewSESAdapter(apiKey, apiSecret, provider.APIEndpoint)
	default:
		return nil, errors.Wrapf(mailflow_errors.ErrInvalidProviderSpec, "unsupported API family %q", provider.Family)
	}
}

// smtpDefaults fills host/port/security from the family preset when the
// provider left them blank.
func smtpDefaults(provider *models.Provider) (string, int, enum.EmailSecurity) {
	host := provider.SmtpHost
	port := provider.SmtpPort
	security := provider.SmtpSecurity

	switch provider.Family {
	case enum.FamilyGmail:
		if host == "" {
			host = "smtp.gmail.com"
		}
		if port == 0 {
			port = 587
		}
		if security == "" {
			security = enum.EmailSecurityTLS
		}
	case enum.FamilyOutlook:
		if host == "" {
			host = "smtp.office365.com"
		}
		if port == 0 {
			port = 587
		}
		if security == "" {
			security = enum.EmailSecurityTLS
		}
	}

	if port == 0 {
		port = 587
	}
	if security == "" {
		security = enum.EmailSecurityNone
	}

	return host, port, security
}

func senderDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return address
	}
	return address[at+1:]
}
