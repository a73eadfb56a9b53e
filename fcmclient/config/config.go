// Package config holds the client configuration: YAML file mapping,
// environment overrides and final validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/tinywideclouds/go-fcm-multicast/pkg/dispatch"
)

type RedisConfig struct {
	Enabled   bool
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// Config is the single, authoritative client configuration. It is
// instance-scoped: two clients built from two Configs share nothing.
type Config struct {
	// CredentialsFile points at a service-account JSON key file. It is
	// loaded into ServiceAccount during finalization when ServiceAccount
	// is not already set.
	CredentialsFile string
	ServiceAccount  *dispatch.ServiceAccount

	Endpoint                string
	MaxConnections          int
	MaxStreamsPerConnection int
	RetryDelay              time.Duration
	MaxRetries              int
	MaxServerRetries        int

	Redis RedisConfig
}

// UpdateConfigWithEnvOverrides applies environment variables, loads the
// credentials file if needed and runs final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	if val := os.Getenv("FCM_CREDENTIALS_FILE"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_CREDENTIALS_FILE", "source", "env")
		cfg.CredentialsFile = val
		cfg.ServiceAccount = nil
	}
	if val := os.Getenv("FCM_ENDPOINT"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_ENDPOINT", "source", "env")
		cfg.Endpoint = val
	}
	if val := os.Getenv("FCM_MAX_CONNECTIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			logger.Debug("Overriding config value", "key", "FCM_MAX_CONNECTIONS", "source", "env")
			cfg.MaxConnections = n
		}
	}
	if val := os.Getenv("FCM_MAX_STREAMS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			logger.Debug("Overriding config value", "key", "FCM_MAX_STREAMS", "source", "env")
			cfg.MaxStreamsPerConnection = n
		}
	}
	if val := os.Getenv("FCM_RETRY_DELAY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			logger.Debug("Overriding config value", "key", "FCM_RETRY_DELAY", "source", "env")
			cfg.RetryDelay = d
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Final Validation
	if cfg.ServiceAccount == nil && cfg.CredentialsFile != "" {
		sa, err := dispatch.LoadServiceAccount(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("load credentials from %q: %w", cfg.CredentialsFile, err)
		}
		cfg.ServiceAccount = sa
	}
	if cfg.ServiceAccount == nil {
		return nil, fmt.Errorf("credentials are required (set credentials_file via YAML or FCM_CREDENTIALS_FILE env var)")
	}
	if cfg.ServiceAccount.ProjectID == "" {
		return nil, dispatch.ErrMissingProjectID
	}
	if cfg.Redis.Namespace == "" {
		cfg.Redis.Namespace = "fcm"
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
