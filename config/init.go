package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/packsmith/mailflow/internal/database"
	"github.com/packsmith/mailflow/internal/logger"
	"github.com/packsmith/mailflow/internal/tracing"
	"github.com/packsmith/mailflow/internal/vault"
	"github.com/packsmith/mailflow/services/dispatch"
)

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *database.DatabaseConfig
	VaultConfig    *vault.Config
	DispatchConfig *dispatch.Config
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &database.DatabaseConfig{},
		VaultConfig:    &vault.Config{},
		DispatchConfig: &dispatch.Config{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading mailflow config: %v", err)
	}

	return config, nil
}
