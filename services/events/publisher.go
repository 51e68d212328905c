package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/packsmith/mailflow/interfaces"
	"github.com/packsmith/mailflow/internal/enum"
	"github.com/packsmith/mailflow/internal/logger"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/tracing"
	"github.com/packsmith/mailflow/internal/utils"
)

const (
	ExchangeDeliveries = "mailflow-deliveries"

	RoutingKeySent   = "delivery.sent"
	RoutingKeyFailed = "delivery.failed"

	DefaultPublishTimeout = 5 * time.Second
)

// DeliveryEvent is the terminal-outcome notification callers subscribe to.
// Only the job's status and reference travel on the wire; content and error
// internals stay in the delivery log.
type DeliveryEvent struct {
	JobID         string              `json:"jobId"`
	TaskType      string              `json:"taskType"`
	Status        enum.DeliveryStatus `json:"status"`
	StatusDetail  string              `json:"statusDetail,omitempty"`
	ReferenceType string              `json:"referenceType,omitempty"`
	ReferenceID   string              `json:"referenceId,omitempty"`
	SentAt        *time.Time          `json:"sentAt,omitempty"`
	OccurredAt    time.Time           `json:"occurredAt"`
}

// RabbitMQPublisher fans terminal delivery outcomes out to the business
// features that enqueued them.
type RabbitMQPublisher struct {
	url            string
	log            logger.Logger
	connection     *amqp091.Connection
	publishChannel *amqp091.Channel
	publishMutex   sync.Mutex
}

func NewRabbitMQPublisher(rabbitmqURL string, log logger.Logger) (*RabbitMQPublisher, error) {
	publisher := &RabbitMQPublisher{
		url: rabbitmqURL,
		log: log,
	}

	if err := publisher.connect(); err != nil {
		return nil, err
	}

	return publisher, nil
}

func (r *RabbitMQPublisher) connect() error {
	connection, err := amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "failed to connect to RabbitMQ")
	}

	channel, err := connection.Channel()
	if err != nil {
		connection.Close()
		return errors.Wrap(err, "failed to open publish channel")
	}

	err = channel.ExchangeDeclare(ExchangeDeliveries, "topic", true, false, false, false, nil)
	if err != nil {
		channel.Close()
		connection.Close()
		return errors.Wrap(err, "failed to declare exchange")
	}

	r.connection = connection
	r.publishChannel = channel
	return nil
}

func (r *RabbitMQPublisher) PublishDeliveryEvent(ctx context.Context, job *models.DeliveryJob) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishDeliveryEvent")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, job.ID)

	event := DeliveryEvent{
		JobID:         job.ID,
		TaskType:      job.TaskType,
		Status:        job.Status,
		StatusDetail:  job.StatusDetail,
		ReferenceType: job.ReferenceType,
		ReferenceID:   job.ReferenceID,
		SentAt:        job.SentAt,
		OccurredAt:    utils.Now(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	routingKey := RoutingKeyFailed
	if job.Status == enum.DeliveryStatusSent {
		routingKey = RoutingKeySent
	}

	publishCtx, cancel := context.WithTimeout(ctx, DefaultPublishTimeout)
	defer cancel()

	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	err = r.publishChannel.PublishWithContext(publishCtx, ExchangeDeliveries, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    job.ID,
		Timestamp:    utils.Now(),
		Body:         body,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to publish delivery event")
	}

	return nil
}

func (r *RabbitMQPublisher) Close() error {
	if r.publishChannel != nil {
		r.publishChannel.Close()
	}
	if r.connection != nil {
		return r.connection.Close()
	}
	return nil
}

var _ interfaces.DeliveryEventPublisher = (*RabbitMQPublisher)(nil)
