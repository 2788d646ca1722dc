package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

type Config struct {
	// Backend
	APIURL      string
	HTTPTimeout time.Duration

	// Local state
	StateDBPath string

	// Store behaviour
	ReconcileDelay time.Duration
	WatchInterval  time.Duration
	EndpointsFile  string

	LogLevel string

	// AMQP event forwarding (disabled when AMQPURL is empty)
	AMQPURL      string
	AMQPExchange string

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Fake backend
	FakeAPIAddr string
}

func Load() *Config {
	return &Config{
		APIURL:      getEnv("FINTRACK_API_URL", "http://localhost:8090"),
		HTTPTimeout: getEnvDuration("FINTRACK_HTTP_TIMEOUT", 30*time.Second),

		StateDBPath: getEnv("FINTRACK_STATE_DB", "./data/fintrack.db"),

		ReconcileDelay: getEnvDuration("FINTRACK_RECONCILE_DELAY", 2*time.Second),
		WatchInterval:  getEnvDuration("FINTRACK_WATCH_INTERVAL", 30*time.Second),
		EndpointsFile:  getEnv("FINTRACK_ENDPOINTS_FILE", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Tickets"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		FakeAPIAddr: getEnv("FINTRACK_FAKE_API_ADDR", ":8090"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if parsedURL, err := url.Parse(c.APIURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid API URL '%s': %v", c.APIURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid API URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	} else if parsedURL.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid API URL '%s': missing host", c.APIURL))
	}

	if c.HTTPTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	} else if c.HTTPTimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at most 10 minutes", c.HTTPTimeout))
	}

	if strings.TrimSpace(c.StateDBPath) == "" {
		errors = append(errors, "state database path cannot be empty")
	}

	if c.ReconcileDelay < 0 {
		errors = append(errors, fmt.Sprintf("invalid reconcile delay %v: must not be negative", c.ReconcileDelay))
	} else if c.ReconcileDelay > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid reconcile delay %v: must be at most 1 minute", c.ReconcileDelay))
	}

	if c.WatchInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid watch interval %v: must be at least 1 second", c.WatchInterval))
	} else if c.WatchInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid watch interval %v: must be at most 24 hours", c.WatchInterval))
	}

	if c.EndpointsFile != "" {
		if _, err := os.Stat(c.EndpointsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("endpoints file does not exist: %s", c.EndpointsFile))
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// SheetsEnabled reports whether enough is configured to attempt an export.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
