package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Due-delivery sweep, every 30 seconds; backstop for attempts whose
	// in-memory schedule was lost on restart
	CronScheduleDeliverySweep string `env:"CRON_SCHEDULE_DELIVERY_SWEEP" envDefault:"*/30 * * * * *"`
}
