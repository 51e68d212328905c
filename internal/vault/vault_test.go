package vault

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(&Config{Key: testKey})
	require.NoError(t, err)
	return v
}

func TestNew_MissingKey(t *testing.T) {
	// Act
	_, err := New(&Config{})

	// Assert
	assert.ErrorIs(t, err, mailflow_errors.ErrVaultKeyMissing)

	_, err = New(nil)
	assert.ErrorIs(t, err, mailflow_errors.ErrVaultKeyMissing)
}

func TestNew_InvalidKey(t *testing.T) {
	// not hex
	_, err := New(&Config{Key: "not-a-hex-key"})
	assert.ErrorIs(t, err, mailflow_errors.ErrVaultKeyInvalid)

	// wrong length
	_, err = New(&Config{Key: "0001020304"})
	assert.ErrorIs(t, err, mailflow_errors.ErrVaultKeyInvalid)
}

func TestVault_EncryptDecrypt_RoundTrip(t *testing.T) {
	// Arrange
	v := newTestVault(t)
	secret := "smtp-app-password-123"

	// Act
	ciphertext, err := v.Encrypt(secret)
	require.NoError(t, err)
	plaintext, err := v.Decrypt(ciphertext)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, secret, plaintext)
	assert.NotEqual(t, secret, ciphertext)
	assert.NotContains(t, ciphertext, secret)
}

func TestVault_Encrypt_UniqueNonce(t *testing.T) {
	// Arrange
	v := newTestVault(t)

	// Act
	first, err := v.Encrypt("same secret")
	require.NoError(t, err)
	second, err := v.Encrypt("same secret")
	require.NoError(t, err)

	// Assert: a fresh nonce per call means identical plaintexts never produce
	// identical ciphertexts
	assert.NotEqual(t, first, second)
}

func TestVault_Decrypt_Tampered(t *testing.T) {
	// Arrange
	v := newTestVault(t)
	ciphertext, err := v.Encrypt("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	// Act
	_, err = v.Decrypt(tampered)

	// Assert
	assert.ErrorIs(t, err, mailflow_errors.ErrDecryptionFailed)
}

func TestVault_Decrypt_Garbage(t *testing.T) {
	v := newTestVault(t)

	_, err := v.Decrypt("%%%not-base64%%%")
	assert.ErrorIs(t, err, mailflow_errors.ErrDecryptionFailed)

	// valid base64 but too short to hold a nonce
	_, err = v.Decrypt(base64.StdEncoding.EncodeToString([]byte("x")))
	assert.ErrorIs(t, err, mailflow_errors.ErrDecryptionFailed)
}

func TestVault_Decrypt_RotatedKey(t *testing.T) {
	// Arrange
	v := newTestVault(t)
	ciphertext, err := v.Encrypt("secret")
	require.NoError(t, err)

	rotated, err := New(&Config{Key: strings.Repeat("ab", 32)})
	require.NoError(t, err)

	// Act
	_, err = rotated.Decrypt(ciphertext)

	// Assert
	assert.ErrorIs(t, err, mailflow_errors.ErrDecryptionFailed)
}
