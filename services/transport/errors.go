package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"strings"

	"github.com/packsmith/mailflow/internal/enum"
)

// classifySMTPError maps SMTP reply codes and dial failures into the
// transport error taxonomy.
func classifySMTPError(err error) *Error {
	if err == nil {
		return nil
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return NewError(classifySMTPCode(protoErr.Code), err)
	}

	// some servers reject AUTH without a structured reply code
	if strings.Contains(strings.ToLower(err.Error()), "auth") {
		return NewError(enum.TransportErrAuthFailed, err)
	}

	return classifyNetworkError(err)
}

func classifySMTPCode(code int) enum.TransportErrorKind {
	switch code {
	case 530, 534, 535, 538:
		return enum.TransportErrAuthFailed
	case 550, 551, 553:
		return enum.TransportErrInvalidRecipient
	case 421, 450, 451, 452:
		return enum.TransportErrRateLimited
	default:
		return enum.TransportErrUnknown
	}
}

// classifyNetworkError maps dial/handshake failures into the taxonomy.
func classifyNetworkError(err error) *Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return NewError(enum.TransportErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(enum.TransportErrTimeout, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewError(enum.TransportErrHostUnreachable, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewError(enum.TransportErrHostUnreachable, err)
	}

	var tlsRecordErr tls.RecordHeaderError
	if errors.As(err, &tlsRecordErr) {
		return NewError(enum.TransportErrTLS, err)
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return NewError(enum.TransportErrTLS, err)
	}
	var unknownAuthErr x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthErr) {
		return NewError(enum.TransportErrTLS, err)
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return NewError(enum.TransportErrTLS, err)
	}
	if strings.Contains(err.Error(), "tls:") {
		return NewError(enum.TransportErrTLS, err)
	}

	return NewError(enum.TransportErrUnknown, err)
}

// classifyHTTPStatus maps vendor API response codes into the taxonomy.
func classifyHTTPStatus(status int) enum.TransportErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return enum.TransportErrAuthFailed
	case status == http.StatusTooManyRequests:
		return enum.TransportErrRateLimited
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return enum.TransportErrInvalidRecipient
	case status >= 500:
		return enum.TransportErrHostUnreachable
	default:
		return enum.TransportErrUnknown
	}
}
