// Package config provides centralized configuration management for the writer.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	API     APIConfig
	Auth    AuthConfig
	Files   FilesConfig
	Catalog CatalogConfig
	Ledger  LedgerConfig
	Export  ExportConfig
	Status  StatusConfig
	Logging LoggingConfig
}

// APIConfig holds record API settings.
type APIConfig struct {
	// OrganizationURL is the base URL of the target organization (required)
	OrganizationURL string `env:"ORGANIZATION_URL" required:"true"`

	// Version is the API version, e.g. v9.1 (required)
	Version string `env:"API_VERSION" required:"true"`

	// Operation is the mode: delete, create_and_update or upsert (required)
	Operation string `env:"OPERATION" required:"true"`

	// ContinueOnError keeps going after a failed record (default: true)
	ContinueOnError bool `env:"CONTINUE_ON_ERROR" default:"true"`

	// Timeout is the per-attempt HTTP timeout (default: 30s)
	Timeout time.Duration `env:"API_TIMEOUT" default:"30s"`

	// MaxRetries bounds retries of transient failures (default: 7)
	MaxRetries int `env:"API_MAX_RETRIES" default:"7"`

	// BackoffFactor scales the retry delay: factor * 2^attempt (default: 100ms)
	BackoffFactor time.Duration `env:"API_BACKOFF_FACTOR" default:"100ms"`

	// RateLimit is requests per second (default: 10)
	RateLimit float64 `env:"API_RATE_LIMIT" default:"10"`

	// RateBurst is the limiter burst (default: 5)
	RateBurst int `env:"API_RATE_BURST" default:"5"`
}

// AuthConfig holds OAuth refresh-token grant settings.
type AuthConfig struct {
	ClientID     string `env:"OAUTH_CLIENT_ID" envAlt:"CLIENT_ID" required:"true"`
	ClientSecret string `env:"OAUTH_CLIENT_SECRET" envAlt:"CLIENT_SECRET" required:"true" secret:"true"`
	RefreshToken string `env:"OAUTH_REFRESH_TOKEN" envAlt:"REFRESH_TOKEN" required:"true" secret:"true"`

	// TokenURL is the token endpoint
	TokenURL string `env:"OAUTH_TOKEN_URL" default:"https://login.microsoftonline.com/common/oauth2/token"`
}

// FilesConfig holds input and output locations.
type FilesConfig struct {
	// InDir holds one <collection>.csv per collection (default: data/in/tables)
	InDir string `env:"DATA_IN_DIR" default:"data/in/tables"`

	// OutDir receives results.csv and its manifest (default: data/out/tables)
	OutDir string `env:"DATA_OUT_DIR" default:"data/out/tables"`
}

// CatalogConfig selects where collection definitions come from.
type CatalogConfig struct {
	// File is an optional YAML catalog used instead of the metadata fetch
	File string `env:"CATALOG_FILE"`
}

// LedgerConfig holds optional ledger mirroring settings.
type LedgerConfig struct {
	// DatabaseURL enables the Postgres mirror when set
	DatabaseURL string `env:"LEDGER_DATABASE_URL" secret:"true"`
}

// ExportConfig holds optional object-store export settings.
type ExportConfig struct {
	Endpoint  string `env:"LEDGER_EXPORT_ENDPOINT"`
	Bucket    string `env:"LEDGER_EXPORT_BUCKET"`
	Prefix    string `env:"LEDGER_EXPORT_PREFIX" default:"results"`
	AccessKey string `env:"LEDGER_EXPORT_ACCESS_KEY"`
	SecretKey string `env:"LEDGER_EXPORT_SECRET_KEY" secret:"true"`
	UseSSL    bool   `env:"LEDGER_EXPORT_USE_SSL" default:"true"`
}

// StatusConfig holds the optional progress endpoint settings.
type StatusConfig struct {
	// Addr enables the status server when set, e.g. :8081
	Addr string `env:"STATUS_ADDR"`

	// ShutdownTimeout bounds the status server shutdown (default: 5s)
	ShutdownTimeout time.Duration `env:"STATUS_SHUTDOWN_TIMEOUT" default:"5s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Enabled reports whether export is configured.
func (c *ExportConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Enabled reports whether the status server is configured.
func (c *StatusConfig) Enabled() bool {
	return c.Addr != ""
}
