package transport

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packsmith/mailflow/internal/enum"
)

func TestClassifySMTPCode(t *testing.T) {
	tests := []struct {
		code     int
		expected enum.TransportErrorKind
	}{
		{530, enum.TransportErrAuthFailed},
		{534, enum.TransportErrAuthFailed},
		{535, enum.TransportErrAuthFailed},
		{538, enum.TransportErrAuthFailed},
		{550, enum.TransportErrInvalidRecipient},
		{551, enum.TransportErrInvalidRecipient},
		{553, enum.TransportErrInvalidRecipient},
		{421, enum.TransportErrRateLimited},
		{450, enum.TransportErrRateLimited},
		{451, enum.TransportErrRateLimited},
		{452, enum.TransportErrRateLimited},
		{554, enum.TransportErrUnknown},
		{250, enum.TransportErrUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, classifySMTPCode(tt.code), "code %d", tt.code)
	}
}

func TestClassifySMTPError(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, classifySMTPError(nil))
	})

	t.Run("structured reply code", func(t *testing.T) {
		err := &textproto.Error{Code: 535, Msg: "5.7.8 Username and Password not accepted"}

		classified := classifySMTPError(err)

		require.NotNil(t, classified)
		assert.Equal(t, enum.TransportErrAuthFailed, classified.Kind)
		assert.ErrorIs(t, classified, err)
	})

	t.Run("unstructured auth rejection", func(t *testing.T) {
		classified := classifySMTPError(errors.New("smtp: server doesn't support AUTH"))

		require.NotNil(t, classified)
		assert.Equal(t, enum.TransportErrAuthFailed, classified.Kind)
	})
}

func TestClassifyNetworkError(t *testing.T) {
	t.Run("deadline exceeded is timeout", func(t *testing.T) {
		classified := classifyNetworkError(context.DeadlineExceeded)

		require.NotNil(t, classified)
		assert.Equal(t, enum.TransportErrTimeout, classified.Kind)
	})

	t.Run("dns failure is host unreachable", func(t *testing.T) {
		err := &net.DNSError{Err: "no such host", Name: "smtp.nowhere.invalid"}

		classified := classifyNetworkError(err)

		require.NotNil(t, classified)
		assert.Equal(t, enum.TransportErrHostUnreachable, classified.Kind)
	})

	t.Run("dns timeout wins over host unreachable", func(t *testing.T) {
		err := &net.DNSError{Err: "i/o timeout", Name: "smtp.nowhere.invalid", IsTimeout: true}

		classified := classifyNetworkError(err)

		require.NotNil(t, classified)
		assert.Equal(t, enum.TransportErrTimeout, classified.Kind)
	})

	t.Run("refused connection is host unreachable", func(t *testing.T) {
		err := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

		classified := classifyNetworkError(err)

		require.NotNil(t, classified)
		assert.Equal(t, enum.TransportErrHostUnreachable, classified.Kind)
	})

	t.Run("tls handshake failure", func(t *testing.T) {
		classified := classifyNetworkError(errors.New("tls: handshake failure"))

		require.NotNil(t, classified)
		assert.Equal(t, enum.TransportErrTLS, classified.Kind)
	})

	t.Run("anything else is unknown", func(t *testing.T) {
		classified := classifyNetworkError(errors.New("broken pipe"))

		require.NotNil(t, classified)
		assert.Equal(t, enum.TransportErrUnknown, classified.Kind)
	})
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected enum.TransportErrorKind
	}{
		{401, enum.TransportErrAuthFailed},
		{403, enum.TransportErrAuthFailed},
		{429, enum.TransportErrRateLimited},
		{400, enum.TransportErrInvalidRecipient},
		{422, enum.TransportErrInvalidRecipient},
		{500, enum.TransportErrHostUnreachable},
		{502, enum.TransportErrHostUnreachable},
		{503, enum.TransportErrHostUnreachable},
		{404, enum.TransportErrUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, classifyHTTPStatus(tt.status), "status %d", tt.status)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, enum.TransportErrorKind(""), KindOf(nil))
	assert.Equal(t, enum.TransportErrRateLimited, KindOf(NewError(enum.TransportErrRateLimited, errors.New("421 try later"))))
	assert.Equal(t, enum.TransportErrUnknown, KindOf(errors.New("bare error")))
}
