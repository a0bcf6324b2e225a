// Package config provides centralized configuration management for the importer.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
//
// The resulting Config is built once in main and passed explicitly to the
// components that need it; nothing in the importer reads the environment later.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Source   SourceConfig
	Ingest   IngestConfig
	Store    StoreConfig
	Database DatabaseConfig
	Status   StatusConfig
	Logging  LoggingConfig
}

// SourceConfig describes where the delimited extract is read from.
type SourceConfig struct {
	// Location is a path, file:/classpath: locator, http(s) URL, or "-" for stdin (required)
	Location string `env:"DATA_FILE_PATH" envAlt:"APP_DATA_FILE_PATH" required:"true"`

	// HeaderSentinel marks header lines to skip (default: MATCH_ID)
	HeaderSentinel string `env:"DATA_HEADER_SENTINEL" default:"MATCH_ID"`

	// ResourceRoot resolves classpath: locators (default: working directory)
	ResourceRoot string `env:"DATA_RESOURCE_ROOT"`
}

// IngestConfig holds partition processing settings.
type IngestConfig struct {
	// BatchSize is the number of records per store write (default: 1000)
	BatchSize int `env:"INGEST_BATCH_SIZE" default:"1000"`

	// Concurrency is the number of partitions processed at once (default: 10)
	Concurrency int `env:"INGEST_CONCURRENCY" default:"10"`

	// Strict rejects lines with fewer than three fields instead of dropping them (default: false)
	Strict bool `env:"INGEST_STRICT" default:"false"`

	// RateLimit caps records per second across all workers; 0 disables pacing (default: 0)
	RateLimit float64 `env:"INGEST_RATE_LIMIT" default:"0"`

	// RateBurst is the token bucket size when RateLimit is set (default: 1)
	RateBurst int `env:"INGEST_RATE_BURST" default:"1"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "postgres" or "memory" (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required for the postgres driver)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate creates the data table on startup if missing (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`

	// WriteMode is "copy" (COPY protocol) or "insert" (batched INSERTs) (default: copy)
	WriteMode string `env:"DB_WRITE_MODE" default:"copy"`

	// PartitionLock takes a transaction-scoped advisory lock per partition key (default: true)
	PartitionLock bool `env:"DB_PARTITION_LOCK" default:"true"`
}

// StatusConfig holds the optional HTTP status server settings.
type StatusConfig struct {
	// Addr is the listen address; empty disables the server
	Addr string `env:"STATUS_ADDR"`

	// ShutdownTimeout bounds graceful shutdown after the run (default: 5s)
	ShutdownTimeout time.Duration `env:"STATUS_SHUTDOWN_TIMEOUT" default:"5s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Database write modes.
const (
	WriteModeCopy   = "copy"
	WriteModeInsert = "insert"
)

// Enabled reports whether the status server should be started.
func (c *StatusConfig) Enabled() bool {
	return c.Addr != ""
}
