package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/tracing"
)

// SMTPAdapter speaks SMTP with STARTTLS or implicit SSL per the provider's
// encryption mode. Credentials arrive already decrypted from the vault.
type SMTPAdapter struct {
	host     string
	port     int
	security enum.EmailSecurity
	username string
	password string
}

func NewSMTPAdapter(host string, port int, security enum.EmailSecurity, username, password string) *SMTPAdapter {
	return &SMTPAdapter{
		host:     host,
		port:     port,
		security: security,
		username: username,
		password: password,
	}
}

func (a *SMTPAdapter) addr() string {
	return fmt.Sprintf("%s:%d", a.host, a.port)
}

func (a *SMTPAdapter) auth() smtp.Auth {
	return smtp.PlainAuth("", a.username, a.password, a.host)
}

// Verify opens and authenticates a connection without sending mail.
func (a *SMTPAdapter) Verify(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPAdapter.Verify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("smtp_host", a.host)
	span.LogKV("smtp_port", a.port)

	client, err := a.connect(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	return client.Quit()
}

func (a *SMTPAdapter) Test(ctx context.Context) error {
	return a.Verify(ctx)
}

func (a *SMTPAdapter) Send(ctx context.Context, message *Message) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPAdapter.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("smtp_host", a.host)
	span.LogKV("from_address", message.FromAddress)

	buffer, err := buildMIMEMessage(message)
	if err != nil {
		tracing.TraceErr(span, err)
		return NewError(enum.TransportErrUnknown, err)
	}

	client, err := a.connect(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	if err = client.Mail(message.FromAddress); err != nil {
		err = classifySMTPError(errors.Wrap(err, "SMTP MAIL command failed"))
		tracing.TraceErr(span, err)
		return err
	}

	for _, recipient := range message.AllRecipients() {
		if err = client.Rcpt(recipient); err != nil {
			err = classifySMTPError(errors.Wrapf(err, "SMTP RCPT command failed for %s", recipient))
			tracing.TraceErr(span, err)
			return err
		}
	}

	dataWriter, err := client.Data()
	if err != nil {
		err = classifySMTPError(errors.Wrap(err, "SMTP DATA command failed"))
		tracing.TraceErr(span, err)
		return err
	}

	if _, err = dataWriter.Write(buffer.Bytes()); err != nil {
		err = classifySMTPError(errors.Wrap(err, "failed to write email data"))
		tracing.TraceErr(span, err)
		return err
	}

	if err = dataWriter.Close(); err != nil {
		err = classifySMTPError(errors.Wrap(err, "failed to close data writer"))
		tracing.TraceErr(span, err)
		return err
	}

	// The server accepted the message once DATA completed; a QUIT failure
	// after that point is not a send failure and must not trigger a retry.
	if err = client.Quit(); err != nil {
		span.LogKV("quit_error", err.Error())
	}

	return nil
}

// connect dials, upgrades to TLS per the configured mode, and authenticates.
// Every step runs under the adapter deadline.
func (a *SMTPAdapter) connect(ctx context.Context) (*smtp.Client, error) {
	deadline := time.Now().Add(SendTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	dialer := &net.Dialer{Deadline: deadline}

	var conn net.Conn
	var err error
	if a.security == enum.EmailSecuritySSL {
		// implicit TLS from the first byte
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: a.host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", a.addr())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", a.addr())
	}
	if err != nil {
		return nil, classifyNetworkError(errors.Wrap(err, "failed to connect to SMTP server"))
	}
	conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, a.host)
	if err != nil {
		conn.Close()
		return nil, classifySMTPError(errors.Wrap(err, "failed to create SMTP client"))
	}

	if a.security == enum.EmailSecurityTLS {
		if err = client.StartTLS(&tls.Config{ServerName: a.host}); err != nil {
			client.Close()
			return nil, NewError(enum.TransportErrTLS, errors.Wrap(err, "failed to start TLS"))
		}
	}

	if a.username != "" {
		if err = client.Auth(a.auth()); err != nil {
			client.Close()
			return nil, classifySMTPError(errors.Wrap(err, "SMTP authentication failed"))
		}
	}

	return client, nil
}

// buildMIMEMessage renders the message to wire format: plain text only, or
// multipart/mixed with text, HTML, and base64 attachments.
func buildMIMEMessage(message *Message) (*bytes.Buffer, error) {
	buffer := bytes.NewBuffer(nil)

	headers := buildHeaders(message)

	if message.BodyHTML == "" && len(message.Attachments) == 0 {
		headers["Content-Type"] = "text/plain; charset=UTF-8"
		writeHeaders(headers, buffer)
		buffer.WriteString(message.BodyText)
		return buffer, nil
	}

	writer := multipart.NewWriter(buffer)
	headers["Content-Type"] = "multipart/mixed; boundary=" + writer.Boundary()
	writeHeaders(headers, buffer)

	if message.BodyText != "" {
		if err := addPart(writer, "text/plain; charset=UTF-8", message.BodyText); err != nil {
			return nil, err
		}
	}

	if message.BodyHTML != "" {
		if err := addPart(writer, "text/html; charset=UTF-8", message.BodyHTML); err != nil {
			return nil, err
		}
	}

	for i := range message.Attachments {
		if err := addAttachment(writer, &message.Attachments[i]); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buffer, nil
}

func buildHeaders(message *Message) map[string]string {
	from := message.FromAddress
	if message.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", message.FromName), message.FromAddress)
	}

	headers := map[string]string{
		"From":         from,
		"To":           joinAddresses(message.ToAddresses),
		"Subject":      mime.QEncoding.Encode("utf-8", message.Subject),
		"Date":         time.Now().Format(time.RFC1123Z),
		"MIME-Version": "1.0",
	}
	if len(message.CcAddresses) > 0 {
		headers["Cc"] = joinAddresses(message.CcAddresses)
	}
	if message.ReplyTo != "" {
		headers["Reply-To"] = message.ReplyTo
	}

	return headers
}

func joinAddresses(addresses []string) string {
	joined := ""
	for i, address := range addresses {
		if i > 0 {
			joined += ", "
		}
		joined += address
	}
	return joined
}

func writeHeaders(headers map[string]string, buffer *bytes.Buffer) {
	for k, v := range headers {
		buffer.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	buffer.WriteString("\r\n")
}

func addPart(writer *multipart.Writer, contentType, content string) error {
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create message part")
	}

	_, err = part.Write([]byte(content))
	return err
}

func addAttachment(writer *multipart.Writer, attachment *models.DeliveryAttachment) error {
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {fmt.Sprintf("%s; name=%q", attachment.ContentType, attachment.Filename)},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", attachment.Filename)},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create attachment part")
	}

	// content is already base64; validate before writing
	if _, err := base64.StdEncoding.DecodeString(attachment.Content); err != nil {
		return errors.Wrapf(err, "attachment %s is not valid base64", attachment.Filename)
	}

	_, err = part.Write([]byte(attachment.Content))
	return err
}
