package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chav-jf/speedy-green-flash/internal/config"
	logging "github.com/chav-jf/speedy-green-flash/internal/logging"
	"github.com/chav-jf/speedy-green-flash/internal/models"
)

var DB *gorm.DB

// DSN builds the postgres connection string.
func DSN(c config.DatabaseConfig) string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port, sslmode)
}

// Init opens the telemetry database and migrates the schema.
func Init(c config.DatabaseConfig, log *zap.Logger) error {
	gormLogger := logging.NewGormZapLogger(log)
	gormLogger.LogLevel = logger.Warn

	db, err := gorm.Open(postgres.Open(DSN(c)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = db
	log.Info("Database connection established successfully.", zap.String("host", c.Host), zap.String("dbname", c.DBName))

	return runMigrations(log)
}

func runMigrations(log *zap.Logger) error {
	// AutoMigrate creates tables and columns but not composite indexes.
	if err := DB.AutoMigrate(&models.PairingSession{}, &models.ReactionEvent{}); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	log.Info("Database migrations completed successfully.")

	eventsIndex := `CREATE INDEX IF NOT EXISTS idx_reaction_events_room_time ON reaction_events (room_code, created_at DESC);`
	if err := DB.Exec(eventsIndex).Error; err != nil {
		return fmt.Errorf("failed to create index on reaction events: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
