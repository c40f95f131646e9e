package database

import (
	"fmt"

	"github.com/CUknot/marketplace_chat/config"
	"github.com/CUknot/marketplace_chat/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect establishes a connection to the postgres database
func Connect(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	log.Info("database connection established", zap.String("host", cfg.Host), zap.String("name", cfg.Name))
	return db, nil
}

// Migrate automatically migrates the messaging schema
func Migrate(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(&models.Message{}, &models.PushToken{}); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Info("database migration completed")
	return nil
}
