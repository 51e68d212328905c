package enum

type TransportKind string

const (
	TransportSMTP TransportKind = "smtp"
	TransportAPI  TransportKind = "api"
)

func (t TransportKind) String() string {
	return string(t)
}

type ProviderFamily string

const (
	FamilyCustomSMTP ProviderFamily = "custom_smtp"
	FamilyGmail      ProviderFamily = "gmail"
	FamilyOutlook    ProviderFamily = "outlook"
	FamilySendgrid   ProviderFamily = "sendgrid"
	FamilyMailgun    ProviderFamily = "mailgun"
	FamilySES        ProviderFamily = "ses"
)

func (t ProviderFamily) String() string {
	return string(t)
}

type EmailSecurity string

const (
	EmailSecurityNone EmailSecurity = "none"
	EmailSecurityTLS  EmailSecurity = "tls"
	EmailSecuritySSL  EmailSecurity = "ssl"
)

func (t EmailSecurity) String() string {
	return string(t)
}

type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusWarning  HealthStatus = "warning"
	HealthStatusCritical HealthStatus = "critical"
	HealthStatusError    HealthStatus = "error"
)

func (t HealthStatus) String() string {
	return string(t)
}
