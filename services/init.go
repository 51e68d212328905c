package services

import (
	"github.com/packsmith/mailflow/config"
	"github.com/packsmith/mailflow/interfaces"
	"github.com/packsmith/mailflow/internal/logger"
	"github.com/packsmith/mailflow/internal/repository"
	"github.com/packsmith/mailflow/internal/vault"
	"github.com/packsmith/mailflow/services/dispatch"
	"github.com/packsmith/mailflow/services/events"
	"github.com/packsmith/mailflow/services/health"
	"github.com/packsmith/mailflow/services/registry"
	"github.com/packsmith/mailflow/services/routing"
	"github.com/packsmith/mailflow/services/transport"
)

type Services struct {
	Vault           *vault.Vault
	HealthTracker   *health.Tracker
	EventPublisher  interfaces.DeliveryEventPublisher
	RegistryService interfaces.RegistryService
	RoutingService  interfaces.RoutingService
	DispatchService interfaces.DispatchService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	secretVault, err := vault.New(cfg.VaultConfig)
	if err != nil {
		return nil, err
	}

	adapters := transport.NewFactory(secretVault)
	tracker := health.NewTracker(repos.ProviderRepository)

	// outcome events are optional; without a broker URL terminal outcomes are
	// only observable through the status endpoint and delivery log
	var publisher interfaces.DeliveryEventPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		publisher, err = events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log)
		if err != nil {
			return nil, err
		}
	}

	routingService := routing.NewRoutingService(repos.ProviderRepository, repos.RoutingRuleRepository)

	services := Services{
		Vault:           secretVault,
		HealthTracker:   tracker,
		EventPublisher:  publisher,
		RegistryService: registry.NewRegistryService(repos.ProviderRepository, secretVault, adapters),
		RoutingService:  routingService,
		DispatchService: dispatch.NewDispatchService(
			cfg.DispatchConfig,
			log,
			repos.DeliveryJobRepository,
			repos.DeliveryLogRepository,
			routingService,
			tracker,
			adapters,
			publisher,
		),
	}

	return &services, nil
}
