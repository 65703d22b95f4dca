package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.yaml")
	data := []byte("webhook_url: https://hooks.example.com/alerts\ncooldown: 5m\ndedupe_window: 1h\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ALERTS_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.WebhookURL != "https://hooks.example.com/alerts" {
		t.Fatalf("webhook url = %q", cfg.WebhookURL)
	}
	if cfg.Cooldown != 5*time.Minute {
		t.Fatalf("cooldown = %v", cfg.Cooldown)
	}
	if cfg.DedupeWindow != time.Hour {
		t.Fatalf("dedupe window = %v", cfg.DedupeWindow)
	}
}

func TestLoadConfigEnvFallback(t *testing.T) {
	t.Setenv("ALERTS_CONFIG", "")
	t.Setenv("ALERT_WEBHOOK_URL", "https://hooks.example.com/env")
	t.Setenv("ALERT_NOTIFY_COOLDOWN", "30s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.WebhookURL != "https://hooks.example.com/env" {
		t.Fatalf("webhook url = %q", cfg.WebhookURL)
	}
	if cfg.Cooldown != 30*time.Second {
		t.Fatalf("cooldown = %v", cfg.Cooldown)
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.yaml")
	if err := os.WriteFile(path, []byte("cooldown: sometimes\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ALERTS_CONFIG", path)

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
