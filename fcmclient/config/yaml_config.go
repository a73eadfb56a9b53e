package config

import (
	"fmt"
	"log/slog"
	"time"
)

type YamlRedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	CredentialsFile         string          `yaml:"credentials_file"`
	Endpoint                string          `yaml:"endpoint"`
	MaxConnections          int             `yaml:"max_connections"`
	MaxStreamsPerConnection int             `yaml:"max_streams_per_connection"`
	RetryDelay              string          `yaml:"retry_delay"`
	MaxRetries              int             `yaml:"max_retries"`
	MaxServerRetries        int             `yaml:"max_server_retries"`
	RedisConfig             YamlRedisConfig `yaml:"redis"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		CredentialsFile:         baseCfg.CredentialsFile,
		Endpoint:                baseCfg.Endpoint,
		MaxConnections:          baseCfg.MaxConnections,
		MaxStreamsPerConnection: baseCfg.MaxStreamsPerConnection,
		MaxRetries:              baseCfg.MaxRetries,
		MaxServerRetries:        baseCfg.MaxServerRetries,
		Redis: RedisConfig{
			Addr:      baseCfg.RedisConfig.Addr,
			Password:  baseCfg.RedisConfig.Password,
			DB:        baseCfg.RedisConfig.DB,
			Enabled:   baseCfg.RedisConfig.Enabled,
			Namespace: baseCfg.RedisConfig.Namespace,
		},
	}

	if baseCfg.RetryDelay != "" {
		d, err := time.ParseDuration(baseCfg.RetryDelay)
		if err != nil {
			return nil, fmt.Errorf("parse retry_delay: %w", err)
		}
		cfg.RetryDelay = d
	}

	logger.Debug("YAML config mapping complete",
		"endpoint", cfg.Endpoint,
		"max_connections", cfg.MaxConnections,
		"max_streams_per_connection", cfg.MaxStreamsPerConnection,
	)

	return cfg, nil
}
