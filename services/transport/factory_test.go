package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packsmith/mailflow/internal/enum"
	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/vault"
)

const testVaultKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestFactory(t *testing.T) (*Factory, *vault.Vault) {
	t.Helper()
	v, err := vault.New(&vault.Config{Key: testVaultKey})
	require.NoError(t, err)
	return NewFactory(v), v
}

func encrypted(t *testing.T, v *vault.Vault, plaintext string) string {
	t.Helper()
	ciphertext, err := v.Encrypt(plaintext)
	require.NoError(t, err)
	return ciphertext
}

func TestAdapterFor_SMTPProvider(t *testing.T) {
	// Arrange
	factory, v := newTestFactory(t)
	provider := &models.Provider{
		ID:            "prov_1",
		TransportKind: enum.TransportSMTP,
		Family:        enum.FamilyCustomSMTP,
		SmtpHost:      "mail.example.com",
		SmtpPort:      465,
		SmtpSecurity:  enum.EmailSecuritySSL,
		SmtpUsername:  "notify@example.com",
		SmtpPassword:  encrypted(t, v, "app-password"),
	}

	// Act
	adapter, err := factory.AdapterFor(provider)

	// Assert
	require.NoError(t, err)
	smtpAdapter, ok := adapter.(*SMTPAdapter)
	require.True(t, ok)
	assert.Equal(t, "mail.example.com", smtpAdapter.host)
	assert.Equal(t, 465, smtpAdapter.port)
	assert.Equal(t, "app-password", smtpAdapter.password)
}

func TestAdapterFor_GmailDefaults(t *testing.T) {
	// Arrange: family preset fills in host, port, and security
	factory, v := newTestFactory(t)
	provider := &models.Provider{
		ID:            "prov_1",
		TransportKind: enum.TransportSMTP,
		Family:        enum.FamilyGmail,
		SmtpUsername:  "notify@gmail.com",
		SmtpPassword:  encrypted(t, v, "app-password"),
	}

	// Act
	adapter, err := factory.AdapterFor(provider)

	// Assert
	require.NoError(t, err)
	smtpAdapter := adapter.(*SMTPAdapter)
	assert.Equal(t, "smtp.gmail.com", smtpAdapter.host)
	assert.Equal(t, 587, smtpAdapter.port)
	assert.Equal(t, enum.EmailSecurityTLS, smtpAdapter.security)
}

func TestAdapterFor_UndecryptableSecretIsConfigurationError(t *testing.T) {
	// Arrange: ciphertext sealed under a different key
	factory, _ := newTestFactory(t)
	otherVault, err := vault.New(&vault.Config{Key: "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"})
	require.NoError(t, err)
	provider := &models.Provider{
		ID:            "prov_1",
		TransportKind: enum.TransportSMTP,
		Family:        enum.FamilyCustomSMTP,
		SmtpHost:      "mail.example.com",
		SmtpUsername:  "notify@example.com",
		SmtpPassword:  encrypted(t, otherVault, "app-password"),
	}

	// Act
	_, err = factory.AdapterFor(provider)

	// Assert
	assert.ErrorIs(t, err, mailflow_errors.ErrDecryptionFailed)
}

func TestAdapterFor_APIFamilies(t *testing.T) {
	factory, v := newTestFactory(t)

	t.Run("sendgrid", func(t *testing.T) {
		adapter, err := factory.AdapterFor(&models.Provider{
			ID:            "prov_sg",
			TransportKind: enum.TransportAPI,
			Family:        enum.FamilySendgrid,
			SenderAddress: "notify@example.com",
			APIKey:        encrypted(t, v, "SG.key"),
		})
		require.NoError(t, err)
		assert.IsType(t, &SendGridAdapter{}, adapter)
	})

	t.Run("mailgun", func(t *testing.T) {
		adapter, err := factory.AdapterFor(&models.Provider{
			ID:            "prov_mg",
			TransportKind: enum.TransportAPI,
			Family:        enum.FamilyMailgun,
			SenderAddress: "notify@example.com",
			APIKey:        encrypted(t, v, "key-mailgun"),
		})
		require.NoError(t, err)
		assert.IsType(t, &MailgunAdapter{}, adapter)
	})

	t.Run("unknown family", func(t *testing.T) {
		_, err := factory.AdapterFor(&models.Provider{
			ID:            "prov_x",
			TransportKind: enum.TransportAPI,
			Family:        "postmark",
			APIKey:        encrypted(t, v, "key"),
		})
		assert.ErrorIs(t, err, mailflow_errors.ErrInvalidProviderSpec)
	})
}

func TestAdapterFor_NilAndUnknownKind(t *testing.T) {
	factory, _ := newTestFactory(t)

	_, err := factory.AdapterFor(nil)
	assert.ErrorIs(t, err, mailflow_errors.ErrInvalidInput)

	_, err = factory.AdapterFor(&models.Provider{ID: "prov_1", TransportKind: "carrier-pigeon"})
	assert.ErrorIs(t, err, mailflow_errors.ErrInvalidProviderSpec)
}
