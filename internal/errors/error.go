package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("record not found")

	// vault errors
	ErrVaultKeyMissing  = errors.New("vault key is not configured")
	ErrVaultKeyInvalid  = errors.New("vault key must be 32 bytes, hex encoded")
	ErrDecryptionFailed = errors.New("unable to decrypt ciphertext")

	// provider errors
	ErrProviderNotFound    = errors.New("provider not found")
	ErrDuplicateSender     = errors.New("sender address already in use")
	ErrInvalidProviderSpec = errors.New("invalid provider configuration")

	// routing errors
	ErrRoutingRuleNotFound = errors.New("routing rule not found")
	ErrNoRoute             = errors.New("no provider available for task type")

	// delivery errors
	ErrJobNotFound       = errors.New("delivery job not found")
	ErrJobTerminal       = errors.New("delivery job already terminal")
	ErrRecipientsMissing = errors.New("at least one recipient is required")
	ErrEmptySubject      = errors.New("email must have a subject")
	ErrEmptyBody         = errors.New("email must have either text or HTML content")
)
