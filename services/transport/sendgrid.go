package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/tracing"
)

const sendgridBaseURL = "https://api.sendgrid.com"

// SendGridAdapter sends through the SendGrid v3 mail API.
type SendGridAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewSendGridAdapter(apiKey, endpoint string) *SendGridAdapter {
	if endpoint == "" {
		endpoint = sendgridBaseURL
	}
	return &SendGridAdapter{
		apiKey:     apiKey,
		baseURL:    endpoint,
		httpClient: &http.Client{Timeout: SendTimeout},
	}
}

type sendgridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendgridPersonalization struct {
	To  []sendgridAddress `json:"to"`
	Cc  []sendgridAddress `json:"cc,omitempty"`
	Bcc []sendgridAddress `json:"bcc,omitempty"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendgridAttachment struct {
	Content     string `json:"content"`
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition"`
}

type sendgridPayload struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridAddress           `json:"from"`
	ReplyTo          *sendgridAddress          `json:"reply_to,omitempty"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
	Attachments      []sendgridAttachment      `json:"attachments,omitempty"`
}

func (a *SendGridAdapter) Verify(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendGridAdapter.Verify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	// scopes endpoint authenticates the key without touching mail
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v3/scopes", nil)
	if err != nil {
		return NewError(enum.TransportErrUnknown, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		err = classifyNetworkError(err)
		tracing.TraceErr(span, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err = vendorAPIError("sendgrid", resp)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (a *SendGridAdapter) Test(ctx context.Context) error {
	return a.Verify(ctx)
}

func (a *SendGridAdapter) Send(ctx context.Context, message *Message) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendGridAdapter.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("from_address", message.FromAddress)

	payload := sendgridPayload{
		Personalizations: []sendgridPersonalization{{
			To:  toSendgridAddresses(message.ToAddresses),
			Cc:  toSendgridAddresses(message.CcAddresses),
			Bcc: toSendgridAddresses(message.BccAddresses),
		}},
		From:    sendgridAddress{Email: message.FromAddress, Name: message.FromName},
		Subject: message.Subject,
	}
	if message.ReplyTo != "" {
		payload.ReplyTo = &sendgridAddress{Email: message.ReplyTo}
	}
	if message.BodyText != "" {
		payload.Content = append(payload.Content, sendgridContent{Type: "text/plain", Value: message.BodyText})
	}
	if message.BodyHTML != "" {
		payload.Content = append(payload.Content, sendgridContent{Type: "text/html", Value: message.BodyHTML})
	}
	for _, attachment := range message.Attachments {
		payload.Attachments = append(payload.Attachments, sendgridAttachment{
			Content:     attachment.Content,
			Type:        attachment.ContentType,
			Filename:    attachment.Filename,
			Disposition: "attachment",
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return NewError(enum.TransportErrUnknown, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return NewError(enum.TransportErrUnknown, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		err = classifyNetworkError(err)
		tracing.TraceErr(span, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err = vendorAPIError("sendgrid", resp)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func toSendgridAddresses(addresses []string) []sendgridAddress {
	if len(addresses) == 0 {
		return nil
	}
	out := make([]sendgridAddress, 0, len(addresses))
	for _, address := range addresses {
		out = append(out, sendgridAddress{Email: address})
	}
	return out
}

// vendorAPIError classifies a non-2xx vendor response, keeping a short body
// excerpt for the delivery log.
func vendorAPIError(vendor string, resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := errors.Errorf("%s API returned %d: %s", vendor, resp.StatusCode, string(body))
	return NewError(classifyHTTPStatus(resp.StatusCode), err)
}
