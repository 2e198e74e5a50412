package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Verify validates the configuration.
func Verify(cfg *CLIConfig) error {
	if err := verifyAPI(&cfg.API); err != nil {
		return err
	}
	if err := verifyPresence(&cfg.Presence); err != nil {
		return err
	}
	if cfg.Storage.Dir == "" {
		return errors.New("storage.dir is required")
	}
	if cfg.Storage.Encrypt && cfg.Storage.KeyFile == "" {
		return errors.New("storage.key_file is required when storage.encrypt is set")
	}
	if err := verifyLog(&cfg.Log); err != nil {
		return err
	}

	switch cfg.Output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("output must be table, json or yaml, got %q", cfg.Output)
	}
	return nil
}

func verifyAPI(cfg *APIConfig) error {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must be http or https, got %q", cfg.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("api.base_url has no host: %q", cfg.BaseURL)
	}

	d, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return fmt.Errorf("api.timeout: %w", err)
	}
	if d <= 0 {
		return errors.New("api.timeout must be positive")
	}
	return nil
}

func verifyPresence(cfg *PresenceConfig) error {
	if cfg.WSURL == "" {
		return nil
	}
	u, err := url.Parse(cfg.WSURL)
	if err != nil {
		return fmt.Errorf("presence.ws_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("presence.ws_url must be ws or wss, got %q", cfg.WSURL)
	}
	return nil
}

func verifyLog(cfg *LogConfig) error {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Level)
	}
	switch cfg.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Format)
	}
	return nil
}
