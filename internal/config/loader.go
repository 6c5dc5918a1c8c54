package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/crmwriter/internal/core"
)

// maxRetries bounds API_MAX_RETRIES.
const maxRetries = 20

var apiVersionPattern = regexp.MustCompile(`^v\d+\.\d+$`)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
// Every missing required variable is reported, not just the first.
func loadStruct(v reflect.Value) error {
	var missing []string
	if err := loadFields(v, &missing); err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

func loadFields(v reflect.Value, missing *[]string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadFields(fieldVal, missing); err != nil {
				return err
			}
			continue
		}

		// Get tags
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

		// Apply default if not set
		if value == "" {
			if required {
				*missing = append(*missing, envName)
				continue
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		// Set the field value
		if err := setField(fieldVal, value); err != nil {
			if field.Tag.Get("secret") == "true" {
				return fmt.Errorf("invalid value for %s: %w", envName, err)
			}
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
		// Handle time.Duration specially
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
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// API validation
	if c.API.OrganizationURL == "" {
		errs = append(errs, "ORGANIZATION_URL is required")
	} else if !strings.HasPrefix(c.API.OrganizationURL, "http://") && !strings.HasPrefix(c.API.OrganizationURL, "https://") {
		errs = append(errs, fmt.Sprintf("ORGANIZATION_URL (%q) must be an http(s) URL", c.API.OrganizationURL))
	}
	if !apiVersionPattern.MatchString(c.API.Version) {
		errs = append(errs, fmt.Sprintf("API_VERSION (%q) must look like v9.0, v9.1", c.API.Version))
	}
	if _, err := core.ParseMode(c.API.Operation); err != nil {
		errs = append(errs, fmt.Sprintf("OPERATION (%q) must be one of: delete, create_and_update, upsert", c.API.Operation))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, "API_TIMEOUT must be positive")
	}
	if c.API.MaxRetries < 0 || c.API.MaxRetries > maxRetries {
		errs = append(errs, fmt.Sprintf("API_MAX_RETRIES (%d) must be between 0 and %d", c.API.MaxRetries, maxRetries))
	}
	if c.API.BackoffFactor <= 0 {
		errs = append(errs, "API_BACKOFF_FACTOR must be positive")
	}
	if c.API.RateLimit <= 0 {
		errs = append(errs, "API_RATE_LIMIT must be positive")
	}
	if c.API.RateBurst <= 0 {
		errs = append(errs, "API_RATE_BURST must be positive")
	}

	// Auth validation
	if c.Auth.ClientID == "" {
		errs = append(errs, "OAUTH_CLIENT_ID is required")
	}
	if c.Auth.ClientSecret == "" {
		errs = append(errs, "OAUTH_CLIENT_SECRET is required")
	}
	if c.Auth.RefreshToken == "" {
		errs = append(errs, "OAUTH_REFRESH_TOKEN is required")
	}

	// Files validation
	if c.Files.InDir == "" {
		errs = append(errs, "DATA_IN_DIR must not be empty")
	}
	if c.Files.OutDir == "" {
		errs = append(errs, "DATA_OUT_DIR must not be empty")
	}

	// Export validation
	if (c.Export.Endpoint == "") != (c.Export.Bucket == "") {
		errs = append(errs, "LEDGER_EXPORT_ENDPOINT and LEDGER_EXPORT_BUCKET must be set together")
	}
	if c.Export.Enabled() && (c.Export.AccessKey == "" || c.Export.SecretKey == "") {
		errs = append(errs, "LEDGER_EXPORT_ACCESS_KEY and LEDGER_EXPORT_SECRET_KEY are required when export is enabled")
	}

	// Status validation
	if c.Status.Enabled() && c.Status.ShutdownTimeout <= 0 {
		errs = append(errs, "STATUS_SHUTDOWN_TIMEOUT must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Mode returns the parsed operation mode. Validate guarantees it parses.
func (c *Config) Mode() core.Mode {
	m, _ := core.ParseMode(c.API.Operation)
	return m
}

// String returns a safe string representation of the config for logging.
// Fields tagged secret:"true" are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	writeStruct(&b, reflect.ValueOf(*c))
	b.WriteString("}")
	return b.String()
}

func writeStruct(b *strings.Builder, v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(field.Name)
		b.WriteString(": ")

		fv := v.Field(i)
		switch {
		case field.Type.Kind() == reflect.Struct:
			b.WriteString("{")
			writeStruct(b, fv)
			b.WriteString("}")
		case field.Tag.Get("secret") == "true":
			if fv.String() == "" {
				b.WriteString(`""`)
			} else {
				b.WriteString("[MASKED]")
			}
		case fv.Kind() == reflect.String:
			fmt.Fprintf(b, "%q", fv.String())
		default:
			fmt.Fprintf(b, "%v", fv.Interface())
		}
	}
}
