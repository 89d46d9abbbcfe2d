package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"salonpro-reminders/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDB opens the relational store named by driver. Postgres is the
// production store; sqlite is used for local runs and tests.
func ConnectDB(driver, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("invalid DB_URL")
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: GormLogger(log.New(os.Stderr, "\r\n", log.LstdFlags)),
		// Timestamps are compared as stored values; keep them all in UTC.
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if driver == "sqlite" {
		// sqlite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(30)
		sqlDB.SetConnMaxLifetime(time.Hour)
		sqlDB.SetConnMaxIdleTime(30 * time.Minute)
	}

	return db, nil
}

// GormLogger logs slow queries and errors to w. A missing row is an expected
// answer for the lookups here, not an error.
func GormLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  true,
	})
}

// Migrate creates the reminder ledger and the location templates table.
// withBookingSchema also creates the appointment tables, which in production
// belong to the booking service.
func Migrate(db *gorm.DB, withBookingSchema bool) error {
	if withBookingSchema {
		if err := db.AutoMigrate(
			&models.Location{},
			&models.Client{},
			&models.Agent{},
			&models.Service{},
			&models.Appointment{},
		); err != nil {
			return fmt.Errorf("migrating booking schema: %w", err)
		}
	}

	if err := db.AutoMigrate(
		&models.ReminderTemplate{},
		&models.ReminderRecord{},
	); err != nil {
		return fmt.Errorf("migrating reminder schema: %w", err)
	}
	return nil
}
