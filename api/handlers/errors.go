package handlers

import (
	"net/http"

	"github.com/pkg/errors"

	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
)

// httpStatusFor maps domain sentinel errors onto HTTP status codes. Anything
// unmapped is an internal error.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, mailflow_errors.ErrProviderNotFound),
		errors.Is(err, mailflow_errors.ErrRoutingRuleNotFound),
		errors.Is(err, mailflow_errors.ErrJobNotFound),
		errors.Is(err, mailflow_errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mailflow_errors.ErrDuplicateSender),
		errors.Is(err, mailflow_errors.ErrJobTerminal):
		return http.StatusConflict
	case errors.Is(err, mailflow_errors.ErrInvalidProviderSpec),
		errors.Is(err, mailflow_errors.ErrRecipientsMissing),
		errors.Is(err, mailflow_errors.ErrEmptySubject),
		errors.Is(err, mailflow_errors.ErrEmptyBody),
		errors.Is(err, mailflow_errors.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
