package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)
}

// Config holds the connection settings for the client registry database.
type Config struct {
	// Driver selects the database driver (postgres, sqlite)
	Driver string

	// PostgreSQL-specific configuration
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	// SQLite-specific configuration
	Path string
}

// String returns a string representation with sensitive data masked
func (c *Config) String() string {
	return fmt.Sprintf("Config{Driver: %s, Host: %s, Port: %s, User: %s, Password: [REDACTED], Name: %s, SSLMode: %s, Path: %s}",
		c.Driver, c.Host, c.Port, c.User, c.Name, c.SSLMode, c.Path)
}

// DSN builds a Data Source Name string based on the driver
func (c *Config) DSN() string {
	switch c.Driver {
	case "postgres", "postgresql":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
	case "sqlite", "":
		return c.Path
	default:
		return ""
	}
}

// Connect opens the client registry database. PostgreSQL may still be coming
// up when the gateway starts, so the connection is retried with backoff.
func Connect(cfg Config) (*gorm.DB, error) {
	const maxAttempts = 5
	delay := time.Second

	switch cfg.Driver {
	case "postgres", "postgresql", "sqlite", "":
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, sqlite)", cfg.Driver)
	}

	log.WithFields(logrus.Fields{
		"db_driver": cfg.Driver,
		"db_name":   cfg.Name,
		"db_path":   cfg.Path,
	}).Info("Connecting to client registry database")

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		db, err := open(cfg)
		if err == nil {
			sqlDB, pingErr := db.DB()
			if pingErr == nil {
				pingErr = sqlDB.Ping()
			}
			if pingErr == nil {
				// Keep the pool small: the registry sees a handful of
				// lookups per token exchange, nothing more
				sqlDB.SetMaxOpenConns(10)
				sqlDB.SetMaxIdleConns(2)
				sqlDB.SetConnMaxLifetime(5 * time.Minute)

				log.WithField("attempt", attempt).Info("Client registry database ready")
				return db, nil
			}
			err = pingErr
		}

		lastErr = err
		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("Client registry connection attempt failed")

		if attempt < maxAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to client registry after %d attempts: %w", maxAttempts, lastErr)
}

func open(cfg Config) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres", "postgresql":
		return gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	case "sqlite", "":
		return gorm.Open(sqlite.Open(cfg.DSN()), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, sqlite)", cfg.Driver)
	}
}
