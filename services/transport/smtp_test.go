package transport

import (
	"bufio"
	"context"
	"encoding/base64"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/models"
)

// startScriptedSMTPServer runs a one-connection SMTP server that accepts any
// message and answers QUIT with the given reply.
func startScriptedSMTPServer(t *testing.T, quitReply string) (host string, port int) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		write := func(line string) { conn.Write([]byte(line + "\r\n")) }

		write("220 mail.test ESMTP")
		inData := false
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			if inData {
				if line == "." {
					inData = false
					write("250 2.0.0 accepted")
				}
				continue
			}
			switch {
			case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
				write("250 mail.test")
			case strings.HasPrefix(line, "DATA"):
				inData = true
				write("354 go ahead")
			case strings.HasPrefix(line, "QUIT"):
				write(quitReply)
				return
			default:
				write("250 OK")
			}
		}
	}()

	addr, portRaw, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	parsed, err := strconv.Atoi(portRaw)
	require.NoError(t, err)
	return addr, parsed
}

func TestBuildMIMEMessage_PlainText(t *testing.T) {
	// Arrange
	message := &Message{
		FromAddress: "notify@example.com",
		FromName:    "Notifications",
		ToAddresses: []string{"a@example.com", "b@example.com"},
		Subject:     "Invoice #42",
		BodyText:    "Plain body.",
	}

	// Act
	buffer, err := buildMIMEMessage(message)

	// Assert
	require.NoError(t, err)
	raw := buffer.String()
	assert.Contains(t, raw, "From: Notifications <notify@example.com>")
	assert.Contains(t, raw, "To: a@example.com, b@example.com")
	assert.Contains(t, raw, "Subject: Invoice #42")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=UTF-8")
	assert.True(t, strings.HasSuffix(raw, "Plain body."))
	assert.NotContains(t, raw, "multipart/mixed")
}

func TestBuildMIMEMessage_HTMLWithAttachment(t *testing.T) {
	// Arrange
	payload := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake"))
	message := &Message{
		FromAddress: "notify@example.com",
		ToAddresses: []string{"a@example.com"},
		Subject:     "Quote",
		BodyText:    "See attached.",
		BodyHTML:    "<p>See attached.</p>",
		Attachments: []models.DeliveryAttachment{
			{Filename: "quote.pdf", ContentType: "application/pdf", Content: payload},
		},
	}

	// Act
	buffer, err := buildMIMEMessage(message)

	// Assert
	require.NoError(t, err)
	raw := buffer.String()
	assert.Contains(t, raw, "multipart/mixed; boundary=")
	assert.Contains(t, raw, "text/plain; charset=UTF-8")
	assert.Contains(t, raw, "text/html; charset=UTF-8")
	assert.Contains(t, raw, `filename="quote.pdf"`)
	assert.Contains(t, raw, "application/pdf")
}

func TestBuildHeaders_NonASCIISubjectIsEncoded(t *testing.T) {
	message := &Message{
		FromAddress: "notify@example.com",
		ToAddresses: []string{"a@example.com"},
		Subject:     "Räkning 42",
	}

	headers := buildHeaders(message)

	assert.Contains(t, headers["Subject"], "=?utf-8?q?")
}

func TestBuildHeaders_OptionalFields(t *testing.T) {
	message := &Message{
		FromAddress: "notify@example.com",
		ToAddresses: []string{"a@example.com"},
		CcAddresses: []string{"cc@example.com"},
		ReplyTo:     "support@example.com",
		Subject:     "Hello",
	}

	headers := buildHeaders(message)

	assert.Equal(t, "notify@example.com", headers["From"])
	assert.Equal(t, "cc@example.com", headers["Cc"])
	assert.Equal(t, "support@example.com", headers["Reply-To"])
}

func TestSMTPSend_QuitFailureAfterAcceptanceIsNotAnError(t *testing.T) {
	// Arrange: the server accepts the message but errors out on QUIT
	host, port := startScriptedSMTPServer(t, "421 4.3.0 shutting down")
	adapter := NewSMTPAdapter(host, port, enum.EmailSecurityNone, "", "")
	message := &Message{
		FromAddress: "notify@example.com",
		ToAddresses: []string{"a@example.com"},
		Subject:     "Invoice #42",
		BodyText:    "Plain body.",
	}

	// Act
	err := adapter.Send(context.Background(), message)

	// Assert: the message is already accepted; reporting the QUIT failure
	// would schedule a retry and deliver it twice
	assert.NoError(t, err)
}

func TestSenderDomain(t *testing.T) {
	assert.Equal(t, "example.com", senderDomain("notify@example.com"))
	assert.Equal(t, "no-at-sign", senderDomain("no-at-sign"))
}
