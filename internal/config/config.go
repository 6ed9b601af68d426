package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Create a new instance of the logger
// Configure it to log at the desired level
// and format it as JSON for structured logging
var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
	environment := GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(logrus.DebugLevel)
	case "production":
		log.SetLevel(logrus.ErrorLevel)
	default:
		// Default to info level for other environments
		log.SetLevel(logrus.InfoLevel)
	}
}

// minAuthSecretLength is the minimum length of the HMAC signing secret.
// Anything shorter than 32 characters is too weak for HS256.
const minAuthSecretLength = 32

// AuthConfig holds the embedded OAuth 2.1 provider configuration.
// When Enabled is false the gateway serves unauthenticated (stdio/local use).
type AuthConfig struct {
	Enabled             bool   `json:"enabled"`
	Secret              string `json:"-"`
	Issuer              string `json:"issuer"`
	ClientID            string `json:"client_id"`
	ClientSecret        string `json:"-"`
	RegistrationEnabled bool   `json:"registration_enabled"`
}

// ClientDBConfig holds the optional persistent client registry configuration.
// An empty Driver means dynamically registered clients live in memory only.
type ClientDBConfig struct {
	Driver   string `json:"driver"`
	Path     string `json:"path"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
}

// Config used for the application configuration, loading the input from environment variables
type Config struct {
	// Server Configuration
	Port int    `json:"port"`
	Host string `json:"host"`

	// Nextcloud server acting as the delegated identity source
	NextcloudURL string `json:"nextcloud_url"`

	// Logging configuration
	LogLevel string `json:"log_level"`

	// OAuth provider configuration
	Auth AuthConfig `json:"auth"`

	// Optional persistent client registry
	ClientDB ClientDBConfig `json:"client_db"`
}

// String returns a string representation of Config with sensitive data masked
func (c *Config) String() string {
	return fmt.Sprintf("Config{Port: %d, Host: %s, NextcloudURL: %s, LogLevel: %s, AuthEnabled: %t, Issuer: %s, ClientID: %s, ClientSecret: [REDACTED], AuthSecret: [REDACTED], RegistrationEnabled: %t, ClientDBDriver: %s}",
		c.Port, c.Host, c.NextcloudURL, c.LogLevel, c.Auth.Enabled, c.Auth.Issuer, c.Auth.ClientID, c.Auth.RegistrationEnabled, c.ClientDB.Driver)
}

// LoadConfig read the proper configuration from environment variables and returns a Config struct
// It also validates formats like NEXTCLOUD_URL and the auth secret length
// Returns an error if any required environment variable is missing or invalid
func LoadConfig() (*Config, error) {
	log.Info("Loading configuration from environment variables")
	port, err := strconv.Atoi(GetEnvWithDefault("APP_PORT", "8080"))
	if err != nil {
		return nil, err
	}

	nextcloudURL := GetEnvWithDefault("NEXTCLOUD_URL", "")
	if nextcloudURL == "" {
		return nil, errors.New("NEXTCLOUD_URL environment variable is required")
	}
	if _, err := url.ParseRequestURI(nextcloudURL); err != nil {
		return nil, fmt.Errorf("invalid NEXTCLOUD_URL format %q: %w", nextcloudURL, err)
	}

	config := &Config{
		Port:         port,
		Host:         GetEnvWithDefault("APP_HOST", "localhost"),
		NextcloudURL: nextcloudURL,
		LogLevel:     GetEnvWithDefault("LOG_LEVEL", "info"),
		Auth: AuthConfig{
			Enabled:             GetEnvAsType("MCP_AUTH_ENABLED", false),
			Secret:              GetEnvWithDefault("MCP_AUTH_SECRET", ""),
			Issuer:              GetEnvWithDefault("MCP_AUTH_ISSUER", ""),
			ClientID:            GetEnvWithDefault("MCP_CLIENT_ID", ""),
			ClientSecret:        GetEnvWithDefault("MCP_CLIENT_SECRET", ""),
			RegistrationEnabled: GetEnvAsType("MCP_REGISTRATION_ENABLED", false),
		},
		ClientDB: ClientDBConfig{
			Driver:   GetEnvWithDefault("MCP_CLIENT_DB_DRIVER", ""),
			Path:     GetEnvWithDefault("MCP_CLIENT_DB_PATH", "clients.sqlite"),
			Host:     GetEnvWithDefault("MCP_CLIENT_DB_HOST", "localhost"),
			Port:     GetEnvWithDefault("MCP_CLIENT_DB_PORT", "5432"),
			User:     GetEnvWithDefault("MCP_CLIENT_DB_USER", "gateway"),
			Password: GetEnvWithDefault("MCP_CLIENT_DB_PASSWORD", ""),
			Name:     GetEnvWithDefault("MCP_CLIENT_DB_NAME", "gateway"),
			SSLMode:  GetEnvWithDefault("MCP_CLIENT_DB_SSLMODE", "disable"),
		},
	}

	if err := validateAuth(&config.Auth); err != nil {
		return nil, err
	}

	log.Infof("Configuration loaded: %s", config.String())
	return config, nil
}

// validateAuth checks the OAuth provider configuration. The checks only apply
// when remote auth is enabled; a disabled provider needs no secret or issuer.
func validateAuth(auth *AuthConfig) error {
	if !auth.Enabled {
		return nil
	}
	if auth.Secret == "" {
		return errors.New("MCP_AUTH_SECRET environment variable is required when MCP_AUTH_ENABLED is true")
	}
	if len(auth.Secret) < minAuthSecretLength {
		return fmt.Errorf("MCP_AUTH_SECRET must be at least %d characters, got %d", minAuthSecretLength, len(auth.Secret))
	}
	if auth.Issuer == "" {
		return errors.New("MCP_AUTH_ISSUER environment variable is required when MCP_AUTH_ENABLED is true")
	}
	issuer, err := url.ParseRequestURI(auth.Issuer)
	if err != nil {
		return fmt.Errorf("invalid MCP_AUTH_ISSUER format %q: %w", auth.Issuer, err)
	}
	if issuer.Scheme != "http" && issuer.Scheme != "https" {
		return fmt.Errorf("MCP_AUTH_ISSUER must be an http(s) URL, got %q", auth.Issuer)
	}
	return nil
}

// Helper to get environment with default values
func GetEnvWithDefault(key, defaultValue string) string {
	log.Tracef("Getting environment variable: %s", key)
	value := os.Getenv(key)
	if value == "" {
		log.Debugf("Environment variable %s not set, using default value", key)
		return defaultValue
	}
	return value
}

// GetEnvAsType retrieves an environment variable and converts it to the specified type
// using generic type handling.
func GetEnvAsType[T any](key string, defaultValue T) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result T
	switch any(result).(type) {
	case int:
		intValue, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return any(intValue).(T)
	case string:
		return any(value).(T)
	case bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return any(boolValue).(T)
	default:
		return defaultValue // Fallback for unsupported types
	}
}
