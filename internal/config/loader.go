package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	cfg.Database.WriteMode = strings.ToLower(cfg.Database.WriteMode)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Every failure is reported, not just the first one.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if strings.TrimSpace(c.Source.Location) == "" {
		errs = multierror.Append(errs, fmt.Errorf("DATA_FILE_PATH is required"))
	}

	if c.Ingest.BatchSize <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("INGEST_BATCH_SIZE (%d) must be positive", c.Ingest.BatchSize))
	}
	if c.Ingest.Concurrency <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("INGEST_CONCURRENCY (%d) must be positive", c.Ingest.Concurrency))
	}
	if c.Ingest.RateLimit < 0 {
		errs = multierror.Append(errs, fmt.Errorf("INGEST_RATE_LIMIT must be non-negative"))
	}
	if c.Ingest.RateLimit > 0 && c.Ingest.RateBurst <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("INGEST_RATE_BURST must be positive when INGEST_RATE_LIMIT is set"))
	}

	switch strings.ToLower(c.Store.Driver) {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = multierror.Append(errs, fmt.Errorf("DATABASE_URL is required for the postgres driver"))
		}
		if c.Database.MaxConns <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("DB_MAX_CONNS must be positive"))
		}
		if c.Database.MinConns < 0 {
			errs = multierror.Append(errs, fmt.Errorf("DB_MIN_CONNS must be non-negative"))
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = multierror.Append(errs, fmt.Errorf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		switch strings.ToLower(c.Database.WriteMode) {
		case WriteModeCopy, WriteModeInsert:
		default:
			errs = multierror.Append(errs, fmt.Errorf("DB_WRITE_MODE (%q) must be one of: copy, insert", c.Database.WriteMode))
		}
	case DriverMemory:
	default:
		errs = multierror.Append(errs, fmt.Errorf("STORE_DRIVER (%q) must be one of: postgres, memory", c.Store.Driver))
	}

	if c.Status.Enabled() && c.Status.ShutdownTimeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("STATUS_SHUTDOWN_TIMEOUT must be positive"))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = multierror.Append(errs, fmt.Errorf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = multierror.Append(errs, fmt.Errorf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	return errs.ErrorOrNil()
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Source: {Location: %q, HeaderSentinel: %q}, ", c.Source.Location, c.Source.HeaderSentinel))
	b.WriteString(fmt.Sprintf("Ingest: {BatchSize: %d, Concurrency: %d, Strict: %v, RateLimit: %g}, ",
		c.Ingest.BatchSize, c.Ingest.Concurrency, c.Ingest.Strict, c.Ingest.RateLimit))
	b.WriteString(fmt.Sprintf("Store: {Driver: %q}, ", c.Store.Driver))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d, WriteMode: %q}, ",
		c.Database.MaxConns, c.Database.MinConns, c.Database.WriteMode))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
