package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/familytree/models"
)

// InitGormDB initializes and returns a GORM database instance. A nil gormLogger
// keeps gorm silent.
func InitGormDB(dataSourceName string, gormLogger logger.Interface) (*gorm.DB, error) {
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	sqlDB, err := InitDB(dataSourceName)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	zap.S().Infof("GORM Database initialized successfully at %s", dataSourceName)
	return db, nil
}

// AutoMigrateModels creates or updates the schema for every model.
func AutoMigrateModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Tree{},
		&models.PersonIndex{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	zap.S().Info("GORM AutoMigrate completed successfully.")
	return nil
}
