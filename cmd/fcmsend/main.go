// fcmsend delivers one message to a set of FCM device tokens and prints
// the tokens the gateway reported as permanently invalid. Recipients come
// from the -tokens flag or, with -audience, from the Redis token registry
// (in which case invalid tokens are pruned from the registry afterwards).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-fcm-multicast/fcmclient"
	"github.com/tinywideclouds/go-fcm-multicast/fcmclient/config"
	"github.com/tinywideclouds/go-fcm-multicast/internal/storage/cache"
	"github.com/tinywideclouds/go-fcm-multicast/pkg/push"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("fcmsend failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	var (
		configPath  = flag.String("config", "config.yaml", "path to YAML configuration")
		messagePath = flag.String("message", "", "path to JSON message payload (required)")
		tokensFlag  = flag.String("tokens", "", "comma-separated device tokens")
		audience    = flag.String("audience", "", "send to every token registered for this audience in Redis")
	)
	flag.Parse()

	if *messagePath == "" {
		return fmt.Errorf("-message is required")
	}
	if *tokensFlag == "" && *audience == "" {
		return fmt.Errorf("one of -tokens or -audience is required")
	}

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		return err
	}

	msg, err := loadMessage(*messagePath)
	if err != nil {
		return err
	}

	client, err := fcmclient.New(cfg, nil, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()

	var registry *cache.TokenRegistry
	tokens := splitTokens(*tokensFlag)
	if *audience != "" {
		if !cfg.Redis.Enabled {
			return fmt.Errorf("-audience requires redis to be enabled in config")
		}
		rdb, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()

		registry = cache.NewTokenRegistry(rdb, cfg.Redis.Namespace)
		registered, err := registry.Tokens(ctx, *audience)
		if err != nil {
			return fmt.Errorf("fetch audience tokens: %w", err)
		}
		tokens = append(tokens, registered...)
	}

	logger.Info("Sending multicast", "recipients", len(tokens))
	invalid, err := client.SendMulticast(ctx, msg, tokens)
	if err != nil {
		return err
	}

	// Self-healing: drop dead tokens from the registry.
	if registry != nil && len(invalid) > 0 {
		if err := registry.Prune(ctx, *audience, invalid); err != nil {
			logger.Warn("Failed to prune invalid tokens", "err", err)
		} else {
			logger.Info("Pruned invalid tokens from registry", "count", len(invalid))
		}
	}

	for _, token := range invalid {
		fmt.Println(token)
	}
	logger.Info("Done", "invalid", len(invalid))
	return nil
}

func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		return nil, err
	}
	return config.UpdateConfigWithEnvOverrides(cfg, logger)
}

func loadMessage(path string) (*push.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	var msg push.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return &msg, nil
}

func splitTokens(raw string) []string {
	if raw == "" {
		return nil
	}
	var tokens []string
	for _, t := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	return tokens
}
