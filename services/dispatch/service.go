package dispatch

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/packsmith/mailflow/interfaces"
	"github.com/packsmith/mailflow/internal/enum"
	mailflow_errors "github.com/packsmith/mailflow/internal/errors"
	"github.com/packsmith/mailflow/internal/logger"
	"github.com/packsmith/mailflow/internal/models"
	"github.com/packsmith/mailflow/internal/tracing"
	"github.com/packsmith/mailflow/internal/utils"
	"github.com/packsmith/mailflow/services/health"
	"github.com/packsmith/mailflow/services/transport"
)

const (
	// DefaultMaxAttempts is the per-job attempt budget.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay seeds the exponential backoff: 2s, 4s, 8s.
	DefaultBaseDelay = 2 * time.Second
	// DefaultWorkerPoolSize bounds concurrent sends; network I/O dominates.
	DefaultWorkerPoolSize = 4
)

type Config struct {
	MaxAttempts    int           `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"3"`
	BaseDelay      time.Duration `env:"DISPATCH_BASE_DELAY" envDefault:"2s"`
	WorkerPoolSize int           `env:"DISPATCH_WORKER_POOL_SIZE" envDefault:"4"`
}

func (c *Config) withDefaults() Config {
	cfg := Config{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		WorkerPoolSize: DefaultWorkerPoolSize,
	}
	if c == nil {
		return cfg
	}
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.BaseDelay > 0 {
		cfg.BaseDelay = c.BaseDelay
	}
	if c.WorkerPoolSize > 0 {
		cfg.WorkerPoolSize = c.WorkerPoolSize
	}
	return cfg
}

type dispatchService struct {
	cfg       Config
	log       logger.Logger
	jobs      interfaces.DeliveryJobRepository
	logs      interfaces.DeliveryLogRepository
	router    interfaces.RoutingService
	tracker   *health.Tracker
	adapters  transport.AdapterSource
	publisher interfaces.DeliveryEventPublisher

	mu     sync.Mutex
	queue  dueQueue
	queued map[string]bool
	wake   chan struct{}

	sem     chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewDispatchService(
	cfg *Config,
	log logger.Logger,
	jobs interfaces.DeliveryJobRepository,
	logs interfaces.DeliveryLogRepository,
	router interfaces.RoutingService,
	tracker *health.Tracker,
	adapters transport.AdapterSource,
	publisher interfaces.DeliveryEventPublisher,
) interfaces.DispatchService {
	resolved := cfg.withDefaults()
	return &dispatchService{
		cfg:       resolved,
		log:       log,
		jobs:      jobs,
		logs:      logs,
		router:    router,
		tracker:   tracker,
		adapters:  adapters,
		publisher: publisher,
		queued:    make(map[string]bool),
		wake:      make(chan struct{}, 1),
		sem:       make(chan struct{}, resolved.WorkerPoolSize),
	}
}

// Enqueue validates the request, persists a PENDING job, and schedules its
// first attempt. It returns as soon as the job is queued; all attempts run on
// the background drain loop.
func (s *dispatchService) Enqueue(ctx context.Context, request interfaces.EnqueueRequest) (*models.DeliveryJob, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "dispatchService.Enqueue")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag(tracing.SpanTagTaskType, request.TaskType)

	if err := validateRequest(&request); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	now := utils.Now()
	job := &models.DeliveryJob{
		TaskType:      request.TaskType,
		Subject:       request.Subject,
		BodyText:      request.BodyText,
		BodyHTML:      request.BodyHTML,
		ToAddresses:   request.To,
		CcAddresses:   request.Cc,
		BccAddresses:  request.Bcc,
		ReferenceType: request.ReferenceType,
		ReferenceID:   request.ReferenceID,
		Status:        enum.DeliveryStatusPending,
		NextAttemptAt: &now,
		Attachments:   request.Attachments,
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.schedule(job.ID, now)
	return job, nil
}

// Cancel flips a pending job to cancelled. The drain loop re-checks status
// immediately before executing an attempt, so a cancel between scheduling and
// execution still wins.
func (s *dispatchService) Cancel(ctx context.Context, jobID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "dispatchService.Cancel")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, jobID)

	err := s.jobs.MarkCancelled(ctx, jobID)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (s *dispatchService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("dispatcher already started")
	}
	s.started = true
	s.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.drainLoop(loopCtx)
	return nil
}

func (s *dispatchService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RecoverPending reloads due PENDING jobs into the queue after a restart.
func (s *dispatchService) RecoverPending(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "dispatchService.RecoverPending")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	due, err := s.jobs.ListDue(ctx, utils.Now(), 500)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}

	recovered := 0
	for i := range due {
		at := utils.GetOrDefault(due[i].NextAttemptAt, utils.Now())
		if s.schedule(due[i].ID, at) {
			recovered++
		}
	}

	return recovered, nil
}

// schedule pushes a job into the due queue unless it is already queued or
// being attempted. Returns true when the job was added.
func (s *dispatchService) schedule(jobID string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queued[jobID] {
		return false
	}
	s.queued[jobID] = true
	heap.Push(&s.queue, &queueItem{jobID: jobID, at: at})

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// reschedule replaces a job's queue entry after a deferred attempt. The job
// is still marked queued, so no lock-free gap exists where a cron sweep could
// double-schedule it.
func (s *dispatchService) reschedule(jobID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	heap.Push(&s.queue, &queueItem{jobID: jobID, at: at})

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *dispatchService) release(jobID string) {
	s.mu.Lock()
	delete(s.queued, jobID)
	s.mu.Unlock()
}

// drainLoop is the single goroutine pulling due jobs off the heap. Individual
// sends run on the bounded worker pool; attempts for one job never overlap
// because a job re-enters the heap only after its attempt completes.
func (s *dispatchService) drainLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		next := s.queue.peek()
		s.mu.Unlock()

		if next == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		now := time.Now()
		if next.at.After(now) {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(next.at.Sub(now))
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			case <-timer.C:
				continue
			}
		}

		s.mu.Lock()
		item := heap.Pop(&s.queue).(*queueItem)
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case s.sem <- struct{}{}:
		}

		s.wg.Add(1)
		go func(jobID string) {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.attempt(ctx, jobID)
		}(item.jobID)
	}
}

// attempt runs one full pass for a job: re-resolve candidates, try each in
// order, then settle the job as SENT, deferred, or FAILED.
func (s *dispatchService) attempt(ctx context.Context, jobID string) {
	span, ctx := tracing.StartTracerSpan(ctx, "dispatchService.attempt")
	defer span.Finish()
	tracing.TagComponentDispatcher(span)
	tracing.TagEntity(span, jobID)

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		tracing.TraceErr(span, err)
		s.release(jobID)
		return
	}

	// liveness check: an administrator may have cancelled the job while it
	// sat in the queue
	if job.Status != enum.DeliveryStatusPending {
		s.release(jobID)
		return
	}

	candidates, err := s.router.ResolveCandidates(ctx, job.TaskType)
	if err != nil {
		tracing.TraceErr(span, err)
		// transient lookup failure; leave the job pending for the sweep
		s.release(jobID)
		return
	}

	if len(candidates) == 0 {
		// configuration problem, not a transient fault: terminal, and the
		// attempt budget is not consumed
		s.logAttempt(ctx, job, "", enum.AttemptOutcomeNoRoute, "", mailflow_errors.ErrNoRoute.Error())
		s.finalize(ctx, job, enum.DeliveryStatusFailed, mailflow_errors.ErrNoRoute.Error())
		return
	}

	sawTransportError := false
	var lastError error

	for i := range candidates {
		provider := &candidates[i]

		adapter, err := s.adapters.AdapterFor(provider)
		if err != nil {
			// misconfigured candidate (bad spec or undecryptable secret);
			// log it and fail over without burning the provider's health
			tracing.TraceErr(span, err)
			s.logAttempt(ctx, job, provider.ID, enum.AttemptOutcomeFailed, "", err.Error())
			lastError = err
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, transport.SendTimeout)
		sendErr := adapter.Send(sendCtx, buildMessage(job, provider))
		cancel()

		if sendErr == nil {
			s.logAttempt(ctx, job, provider.ID, enum.AttemptOutcomeSent, "", "")
			if err := s.tracker.RecordSuccess(ctx, provider.ID); err != nil {
				tracing.TraceErr(span, err)
			}
			job.SentAt = utils.NowPtr()
			s.finalize(ctx, job, enum.DeliveryStatusSent, "")
			return
		}

		tracing.TraceErr(span, sendErr)
		kind := transport.KindOf(sendErr)
		s.logAttempt(ctx, job, provider.ID, enum.AttemptOutcomeFailed, kind.String(), sendErr.Error())
		if err := s.tracker.RecordFailure(ctx, provider.ID, sendErr.Error()); err != nil {
			tracing.TraceErr(span, err)
		}
		sawTransportError = true
		lastError = sendErr
	}

	detail := ""
	if lastError != nil {
		detail = lastError.Error()
	}

	if !sawTransportError {
		// every candidate failed before reaching the wire: configuration
		// errors are never retried through the backoff scheduler
		s.finalize(ctx, job, enum.DeliveryStatusFailed, detail)
		return
	}

	job.AttemptCount++
	if job.AttemptCount >= s.cfg.MaxAttempts {
		s.logAttempt(ctx, job, "", enum.AttemptOutcomeFailed, "", "attempt budget exhausted: "+detail)
		s.finalize(ctx, job, enum.DeliveryStatusFailed, detail)
		return
	}

	nextAt := utils.Now().Add(s.backoffDelay(job.AttemptCount))
	job.NextAttemptAt = &nextAt
	job.StatusDetail = detail

	if err := s.jobs.Update(ctx, job); err != nil {
		tracing.TraceErr(span, err)
		s.release(jobID)
		return
	}

	s.logAttempt(ctx, job, "", enum.AttemptOutcomeDeferred, "", detail)
	s.reschedule(jobID, nextAt)
}

// backoffDelay computes base * 2^(attempt-1): 2s, 4s, 8s with the defaults.
func (s *dispatchService) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return s.cfg.BaseDelay << (attempt - 1)
}

// finalize writes the terminal status, releases the queue slot, and notifies
// subscribers.
func (s *dispatchService) finalize(ctx context.Context, job *models.DeliveryJob, status enum.DeliveryStatus, detail string) {
	job.Status = status
	job.StatusDetail = detail
	job.NextAttemptAt = nil

	if err := s.jobs.Update(ctx, job); err != nil {
		s.log.Errorf("failed to update job %s: %v", job.ID, err)
	}

	s.release(job.ID)

	if s.publisher != nil {
		if err := s.publisher.PublishDeliveryEvent(ctx, job); err != nil {
			s.log.Errorf("failed to publish delivery event for job %s: %v", job.ID, err)
		}
	}
}

func (s *dispatchService) logAttempt(ctx context.Context, job *models.DeliveryJob, providerID string, outcome enum.AttemptOutcome, errorKind, errorDetail string) {
	entry := &models.DeliveryLogEntry{
		JobID:       job.ID,
		TaskType:    job.TaskType,
		ProviderID:  providerID,
		Outcome:     outcome,
		ErrorKind:   errorKind,
		ErrorDetail: errorDetail,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		s.log.Errorf("failed to write delivery log for job %s: %v", job.ID, err)
	}
}

func buildMessage(job *models.DeliveryJob, provider *models.Provider) *transport.Message {
	return &transport.Message{
		FromAddress:  provider.SenderAddress,
		FromName:     provider.SenderName,
		ToAddresses:  job.ToAddresses,
		CcAddresses:  job.CcAddresses,
		BccAddresses: job.BccAddresses,
		Subject:      job.Subject,
		BodyText:     job.BodyText,
		BodyHTML:     job.BodyHTML,
		Attachments:  job.Attachments,
	}
}

// validateRequest rejects malformed requests synchronously; they never enter
// the queue.
func validateRequest(request *interfaces.EnqueueRequest) error {
	if request.TaskType == "" {
		return errors.Wrap(mailflow_errors.ErrInvalidInput, "task type is required")
	}
	if len(request.To) == 0 {
		return mailflow_errors.ErrRecipientsMissing
	}
	for _, recipients := range [][]string{request.To, request.Cc, request.Bcc} {
		for _, address := range recipients {
			if err := utils.ValidateEmailAddress(address); err != nil {
				return errors.Wrap(mailflow_errors.ErrInvalidInput, address)
			}
		}
	}
	if request.Subject == "" {
		return mailflow_errors.ErrEmptySubject
	}
	if request.BodyText == "" && request.BodyHTML == "" {
		return mailflow_errors.ErrEmptyBody
	}
	return nil
}
