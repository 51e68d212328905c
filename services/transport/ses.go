package transport

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/tracing"
)

// SESAdapter sends through Amazon SES. The provider's API key/secret pair is
// an IAM access key; the endpoint field carries the region.
type SESAdapter struct {
	client *ses.SES
}

func NewSESAdapter(accessKeyID, secretAccessKey, region string) (*SESAdapter, error) {
	if region == "" {
		region = "us-east-1"
	}

	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKeyID, secretAccessKey, ""),
	})
	if err != nil {
		return nil, err
	}

	return &SESAdapter{client: ses.New(sess)}, nil
}

func (a *SESAdapter) Verify(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SESAdapter.Verify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	timeoutCtx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	// quota call authenticates the key without touching mail
	_, err := a.client.GetSendQuotaWithContext(timeoutCtx, &ses.GetSendQuotaInput{})
	if err != nil {
		err = classifySESError(err)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (a *SESAdapter) Test(ctx context.Context) error {
	return a.Verify(ctx)
}

func (a *SESAdapter) Send(ctx context.Context, message *Message) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SESAdapter.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("from_address", message.FromAddress)

	// raw MIME so attachments and alternative parts survive intact
	buffer, err := buildMIMEMessage(message)
	if err != nil {
		tracing.TraceErr(span, err)
		return NewError(enum.TransportErrUnknown, err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	input := &ses.SendRawEmailInput{
		Source:       aws.String(message.FromAddress),
		Destinations: aws.StringSlice(message.AllRecipients()),
		RawMessage:   &ses.RawMessage{Data: buffer.Bytes()},
	}

	if _, err := a.client.SendRawEmailWithContext(timeoutCtx, input); err != nil {
		err = classifySESError(err)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func classifySESError(err error) *Error {
	if err == nil {
		return nil
	}

	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		switch awsErr.Code() {
		case "InvalidClientTokenId", "SignatureDoesNotMatch", "UnrecognizedClientException", "AccessDenied", "AccessDeniedException":
			return NewError(enum.TransportErrAuthFailed, err)
		case "Throttling", "ThrottlingException", ses.ErrCodeLimitExceededException:
			return NewError(enum.TransportErrRateLimited, err)
		case ses.ErrCodeMessageRejected, ses.ErrCodeMailFromDomainNotVerifiedException:
			return NewError(enum.TransportErrInvalidRecipient, err)
		case "RequestCanceled", "RequestTimeout":
			return NewError(enum.TransportErrTimeout, err)
		}
	}

	return classifyNetworkError(err)
}
