package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config contains database configuration.
type Config struct {
	// DatabaseURL is a postgres:// connection string. When empty the
	// catalog falls back to a local SQLite file at SQLitePath.
	DatabaseURL string

	// SQLitePath is the SQLite database file used when DatabaseURL is
	// empty. Default: ./data/catalog.db
	SQLitePath string

	// MaxOpenConns and MaxIdleConns size the PostgreSQL pool.
	MaxOpenConns int
	MaxIdleConns int
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		c.SQLitePath = filepath.Join("data", "catalog.db")
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
}

// GORMStore implements the catalog on GORM. It supports both SQLite and
// PostgreSQL backends via the same codebase.
type GORMStore struct {
	db *gorm.DB
}

// New opens the database and migrates the schema via GORM AutoMigrate.
func New(config *Config) (*GORMStore, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()

	var dialector gorm.Dialector
	switch {
	case config.DatabaseURL != "":
		dialector = postgres.Open(config.DatabaseURL)

	default:
		if err := os.MkdirAll(filepath.Dir(config.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// WAL keeps concurrent readers off the writer's lock; busy_timeout
		// waits instead of failing when the single writer is mid-transaction.
		dsn := config.SQLitePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.DatabaseURL != "" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	return &GORMStore{db: db}, nil
}

// DB returns the underlying GORM database connection. Useful for advanced
// queries or testing.
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite or PostgreSQL unique constraint errors
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key value violates unique constraint")
}

// convertNotFoundError converts gorm.ErrRecordNotFound to the appropriate domain error.
func convertNotFoundError(err error, notFoundErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundErr
	}
	return err
}
