package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/packsmith/mailflow/interfaces"
	"github.com/packsmith/mailflow/internal/models"
)

type Repositories struct {
	ProviderRepository    interfaces.ProviderRepository
	RoutingRuleRepository interfaces.RoutingRuleRepository
	DeliveryJobRepository interfaces.DeliveryJobRepository
	DeliveryLogRepository interfaces.DeliveryLogRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		ProviderRepository:    NewProviderRepository(db),
		RoutingRuleRepository: NewRoutingRuleRepository(db),
		DeliveryJobRepository: NewDeliveryJobRepository(db),
		DeliveryLogRepository: NewDeliveryLogRepository(db),
	}
}

type MigrationConfig struct {
	MaxConn         int
	MaxIdleConn     int
	ConnMaxLifetime int
}

func MigrateDB(cfg *MigrationConfig, gormDB *gorm.DB) error {
	db, err := gormDB.DB()
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(5)

	err = gormDB.AutoMigrate(
		&models.Provider{},
		&models.RoutingRule{},
		&models.DeliveryJob{},
		&models.DeliveryAttachment{},
		&models.DeliveryLogEntry{},
	)
	if err != nil {
		return err
	}

	db.SetMaxIdleConns(cfg.MaxIdleConn)
	db.SetMaxOpenConns(cfg.MaxConn)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	return nil
}
