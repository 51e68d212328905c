package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/opentracing/opentracing-go"

	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/tracing"
)

const mailgunBaseURL = "https://api.mailgun.net"

// MailgunAdapter sends through the Mailgun v3 messages API. The sending
// domain is derived from the sender address; the key authenticates as the
// "api" basic-auth user.
type MailgunAdapter struct {
	apiKey     string
	domain     string
	baseURL    string
	httpClient *http.Client
}

func NewMailgunAdapter(apiKey, domain, endpoint string) *MailgunAdapter {
	if endpoint == "" {
		endpoint = mailgunBaseURL
	}
	return &MailgunAdapter{
		apiKey:     apiKey,
		domain:     domain,
		baseURL:    endpoint,
		httpClient: &http.Client{Timeout: SendTimeout},
	}
}

func (a *MailgunAdapter) Verify(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailgunAdapter.Verify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	url := fmt.Sprintf("%s/v3/domains/%s", a.baseURL, a.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return NewError(enum.TransportErrUnknown, err)
	}
	req.SetBasicAuth("api", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		err = classifyNetworkError(err)
		tracing.TraceErr(span, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err = vendorAPIError("mailgun", resp)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (a *MailgunAdapter) Test(ctx context.Context) error {
	return a.Verify(ctx)
}

func (a *MailgunAdapter) Send(ctx context.Context, message *Message) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailgunAdapter.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("from_address", message.FromAddress)

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	from := message.FromAddress
	if message.FromName != "" {
		from = fmt.Sprintf("%s <%s>", message.FromName, message.FromAddress)
	}
	form.WriteField("from", from)
	form.WriteField("to", strings.Join(message.ToAddresses, ","))
	if len(message.CcAddresses) > 0 {
		form.WriteField("cc", strings.Join(message.CcAddresses, ","))
	}
	if len(message.BccAddresses) > 0 {
		form.WriteField("bcc", strings.Join(message.BccAddresses, ","))
	}
	if message.ReplyTo != "" {
		form.WriteField("h:Reply-To", message.ReplyTo)
	}
	form.WriteField("subject", message.Subject)
	if message.BodyText != "" {
		form.WriteField("text", message.BodyText)
	}
	if message.BodyHTML != "" {
		form.WriteField("html", message.BodyHTML)
	}

	for _, attachment := range message.Attachments {
		part, err := form.CreateFormFile("attachment", attachment.Filename)
		if err != nil {
			return NewError(enum.TransportErrUnknown, err)
		}
		content, err := base64.StdEncoding.DecodeString(attachment.Content)
		if err != nil {
			return NewError(enum.TransportErrUnknown, err)
		}
		if _, err := part.Write(content); err != nil {
			return NewError(enum.TransportErrUnknown, err)
		}
	}

	if err := form.Close(); err != nil {
		return NewError(enum.TransportErrUnknown, err)
	}

	url := fmt.Sprintf("%s/v3/%s/messages", a.baseURL, a.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return NewError(enum.TransportErrUnknown, err)
	}
	req.SetBasicAuth("api", a.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := a.httpClient.Do(req)
	if err != nil {
		err = classifyNetworkError(err)
		tracing.TraceErr(span, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err = vendorAPIError("mailgun", resp)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}
