package utils

import (
	"net/mail"
	"strings"
	"time"
)

// Redacted replaces every secret field on records leaving the engine.
const Redacted = "••••••••"

// NormalizeEmailAddress lower-cases and trims an address for uniqueness checks.
func NormalizeEmailAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ValidateEmailAddress checks RFC 5322 syntax of a bare address.
func ValidateEmailAddress(address string) error {
	_, err := mail.ParseAddress(address)
	return err
}

func Now() time.Time {
	return time.Now().UTC()
}

func NowPtr() *time.Time {
	now := Now()
	return &now
}
