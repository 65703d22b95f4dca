package notify

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines notification settings.
type Config struct {
	WebhookURL   string
	Template     string
	Cooldown     time.Duration
	DedupeWindow time.Duration
}

// fileConfig carries durations as strings so "5m" style values work in yaml.
type fileConfig struct {
	WebhookURL   string `yaml:"webhook_url"`
	Template     string `yaml:"template"`
	Cooldown     string `yaml:"cooldown"`
	DedupeWindow string `yaml:"dedupe_window"`
}

// LoadConfig loads notification settings from yaml or env. Env values fill
// gaps the file leaves; an empty webhook URL disables webhook delivery.
func LoadConfig() (Config, error) {
	var cfg Config

	if path := os.Getenv("ALERTS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		var file fileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return cfg, err
		}
		cfg.WebhookURL = file.WebhookURL
		cfg.Template = file.Template
		if cfg.Cooldown, err = parseDuration(file.Cooldown); err != nil {
			return cfg, fmt.Errorf("alerts config: cooldown: %w", err)
		}
		if cfg.DedupeWindow, err = parseDuration(file.DedupeWindow); err != nil {
			return cfg, fmt.Errorf("alerts config: dedupe_window: %w", err)
		}
	}

	if cfg.WebhookURL == "" {
		cfg.WebhookURL = os.Getenv("ALERT_WEBHOOK_URL")
	}
	if cfg.Template == "" {
		cfg.Template = os.Getenv("ALERT_NOTIFY_TEMPLATE")
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = getenvDuration("ALERT_NOTIFY_COOLDOWN", 0)
	}
	if cfg.DedupeWindow == 0 {
		cfg.DedupeWindow = getenvDuration("ALERT_NOTIFY_DEDUP_WINDOW", 0)
	}
	return cfg, nil
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
