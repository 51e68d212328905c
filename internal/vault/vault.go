package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"io"

	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
)

type Config struct {
	// Key is a hex-encoded 32 byte AES key. The key is read once at startup;
	// rotation is a restart-time migration, never a runtime mutation.
	Key string `env:"MAILFLOW_VAULT_KEY"`
}

// Vault encrypts provider secrets before they reach durable storage and
// decrypts them just before a transport adapter needs them. Ciphertext format
// is base64(nonce || AES-256-GCM sealed payload).
type Vault struct {
	aead cipher.AEAD
}

func New(cfg *Config) (*Vault, error) {
	if cfg == nil || cfg.Key == "" {
		return nil, mailflow_errors.ErrVaultKeyMissing
	}

	key, err := hex.DecodeString(cfg.Key)
	if err != nil || len(key) != 32 {
		return nil, mailflow_errors.ErrVaultKeyInvalid
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Vault{aead: aead}, nil
}

func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (v *Vault) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", mailflow_errors.ErrDecryptionFailed
	}
	if len(raw) < v.aead.NonceSize() {
		return "", mailflow_errors.ErrDecryptionFailed
	}

	nonce, sealed := raw[:v.aead.NonceSize()], raw[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// tampered payload or a rotated key; callers must treat this as a
		// configuration error, not a transient send failure
		return "", mailflow_errors.ErrDecryptionFailed
	}

	return string(plaintext), nil
}
