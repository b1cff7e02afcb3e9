package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/snaplink-labs/snaplink_api/model"
)

// SqlService owns the GORM connection for the registry, rate-limit ledger,
// and analytics tables. Driver is selected by DB_DRIVER (sqlite default,
// postgres for deployments).
type SqlService struct {
	context.DefaultService
	db *gorm.DB

	driver string
	dsn    string
}

const SQL_SVC = "sql_svc"

func (ds SqlService) Id() string {
	return SQL_SVC
}

// Db Access to raw db handle
func (ds *SqlService) Db() *gorm.DB {
	return ds.db
}

// SetDb swaps the handle; used by tests with an in-memory database.
func (ds *SqlService) SetDb(db *gorm.DB) {
	ds.db = db
}

func (ds *SqlService) Configure(ctx *context.Context) error {
	ds.driver = os.Getenv("DB_DRIVER")
	if ds.driver == "" {
		ds.driver = "sqlite"
	}

	switch ds.driver {
	case "postgres":
		ds.dsn = os.Getenv("DATABASE_URL")
		if ds.dsn == "" {
			host := envOr("DB_HOST", "localhost")
			port := envOr("DB_PORT", "5432")
			user := envOr("DB_USER", "postgres")
			password := envOr("DB_PASSWORD", "postgres")
			dbname := envOr("DB_NAME", "snaplink")
			sslmode := envOr("DB_SSLMODE", "disable")

			ds.dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
				host, user, password, dbname, port, sslmode)
		}
	default:
		ds.dsn = os.Getenv("DB_DATABASE")
		if ds.dsn == "" {
			ds.dsn = "snaplink.db"
		}
	}

	return ds.DefaultService.Configure(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Start opens the connection, retrying with backoff for postgres, and
// migrates any tables that have changed since last runtime.
func (ds *SqlService) Start() (err error) {
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error),
		TranslateError: true,
	}

	switch ds.driver {
	case "postgres":
		maxRetries := 10
		retryDelay := time.Second

		for attempt := 1; attempt <= maxRetries; attempt++ {
			ds.db, err = gorm.Open(postgres.Open(ds.dsn), cfg)
			if err == nil {
				if sqlDB, dbErr := ds.db.DB(); dbErr == nil {
					if pingErr := sqlDB.Ping(); pingErr == nil {
						break
					} else {
						err = pingErr
					}
				} else {
					err = dbErr
				}
			}

			if attempt == maxRetries {
				log.Printf("Failed to connect to database after %d attempts: %v", maxRetries, err)
				return err
			}

			log.Printf("Database connection failed: %v. Retrying in %v...", err, retryDelay)
			time.Sleep(retryDelay)
			retryDelay *= 2
			if retryDelay > 10*time.Second {
				retryDelay = 10 * time.Second
			}
		}
	default:
		ds.db, err = gorm.Open(sqlite.Open(ds.dsn), cfg)
		if err != nil {
			return err
		}
	}

	if err := ds.Migrate(); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		return err
	}

	log.Println("Database connected and migrated successfully")
	return nil
}

// Migrate creates or updates all persistence tables.
func (ds *SqlService) Migrate() error {
	return ds.db.AutoMigrate(
		&model.Account{},
		&model.Link{},
		&model.QRCode{},
		&model.RateLimitEntry{},
		&model.AbuseRecord{},
		&model.AbuseLogEntry{},
		&model.AnalyticsEvent{},
	)
}

func (ds *SqlService) Shutdown() {
	if ds.db == nil {
		return
	}
	if sqlDB, err := ds.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// HandleError translates store errors into the status-coded taxonomy the
// HTTP layer reports.
func (ds *SqlService) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var statusCode int
	var errorType string

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		statusCode = http.StatusNotFound
		errorType = "NOT_FOUND"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		statusCode = http.StatusConflict
		errorType = "CONFLICT"
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		statusCode = http.StatusBadRequest
		errorType = "FOREIGN_KEY_VIOLATION"
	case errors.Is(err, gorm.ErrInvalidTransaction):
		statusCode = http.StatusInternalServerError
		errorType = "TRANSACTION_ERROR"
	default:
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			statusCode = http.StatusConflict
			errorType = "UNIQUE_CONSTRAINT"
		} else if strings.Contains(err.Error(), "no such table") {
			statusCode = http.StatusInternalServerError
			errorType = "SCHEMA_ERROR"
		} else {
			statusCode = http.StatusInternalServerError
			errorType = "INTERNAL_ERROR"
		}
	}

	logEntry := log.WithFields(log.Fields{
		"status_code": statusCode,
		"error_type":  errorType,
		"error":       err.Error(),
	})

	if statusCode >= 500 {
		logEntry.Error("Database error occurred")
	} else {
		logEntry.Warn("Database operation failed")
	}

	return fmt.Errorf("%s: %w", errorType, err)
}

// IsDuplicate reports whether an error came from a unique-constraint
// conditional insert. Alias reservation relies on this instead of a prior
// read.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
