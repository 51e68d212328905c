package cron

import (
	"context"
	"sync"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/packsmith/mailflow/interfaces"
	cron_config "github.com/packsmith/mailflow/internal/cron/config"
	"github.com/packsmith/mailflow/internal/logger"
	"github.com/packsmith/mailflow/internal/tracing"
)

const (
	// GroupDispatch is the group for delivery dispatch related jobs
	GroupDispatch = "dispatch"
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupDispatch: new(sync.Mutex),
	},
}

type CronManager struct {
	log        logger.Logger
	cron       *cronv3.Cron
	stopCh     chan struct{}
	jobIDs     map[string]cronv3.EntryID
	dispatcher interfaces.DispatchService
}

func NewCronManager(log logger.Logger, dispatcher interfaces.DispatchService) *CronManager {
	return &CronManager{
		log:        log,
		stopCh:     make(chan struct{}),
		jobIDs:     make(map[string]cronv3.EntryID),
		dispatcher: dispatcher,
	}
}

// Start initializes and starts the cron scheduler.
func (cm *CronManager) Start() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		<-ctx.Done()
	}
	close(cm.stopCh)
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	if cronConfig.CronScheduleHeartbeat != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Info("Cron heartbeat")
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	if cronConfig.CronScheduleDeliverySweep != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleDeliverySweep, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupDispatch].Lock()
			defer jobLocks.locks[GroupDispatch].Unlock()
			cm.sweepDueDeliveries()
		})
		if err != nil {
			cm.log.Fatalf("Could not add delivery sweep cron job: %v", err)
		}
		cm.jobIDs["delivery_sweep"] = id
		cm.log.Infof("Registered delivery sweep job with schedule: %s", cronConfig.CronScheduleDeliverySweep)
	}
}

// sweepDueDeliveries re-schedules any pending job that is due but absent from
// the dispatcher's in-memory queue. Normal operation finds nothing; after a
// crash between persisting a job and scheduling its attempt this picks up the
// stragglers. Already-queued jobs are deduplicated by the dispatcher.
func (cm *CronManager) sweepDueDeliveries() {
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.sweepDueDeliveries")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	recovered, err := cm.dispatcher.RecoverPending(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to sweep due deliveries: %v", err)
		return
	}

	if recovered > 0 {
		cm.log.Infof("Delivery sweep re-scheduled %d job(s)", recovered)
	}
}
