package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("expected HTTPAddr %s, got %s", DefaultHTTPAddr, cfg.HTTPAddr)
	}
	if cfg.Queue.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", cfg.Queue.MaxRetries)
	}
	if cfg.Queue.LeaseDuration != 60*time.Second {
		t.Errorf("expected LeaseDuration 60s, got %v", cfg.Queue.LeaseDuration)
	}
	if cfg.Monitor.DeliveryRateFloor != 0.80 {
		t.Errorf("expected DeliveryRateFloor 0.80, got %f", cfg.Monitor.DeliveryRateFloor)
	}
	if cfg.Monitor.ConsecutiveWindows != 5 {
		t.Errorf("expected ConsecutiveWindows 5, got %d", cfg.Monitor.ConsecutiveWindows)
	}
	if cfg.Escalation.DefaultCooldown != 30*time.Minute {
		t.Errorf("expected DefaultCooldown 30m, got %v", cfg.Escalation.DefaultCooldown)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
http_addr: ":9090"
queue:
  max_retries: 5
monitor:
  delivery_rate_floor: 0.9
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.HTTPAddr)
	}
	if cfg.Queue.MaxRetries != 5 {
		t.Errorf("expected MaxRetries 5, got %d", cfg.Queue.MaxRetries)
	}
	if cfg.Monitor.DeliveryRateFloor != 0.9 {
		t.Errorf("expected floor 0.9, got %f", cfg.Monitor.DeliveryRateFloor)
	}
	// Untouched keys keep their defaults.
	if cfg.Queue.BatchSize != 25 {
		t.Errorf("expected BatchSize default 25, got %d", cfg.Queue.BatchSize)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("expected default addr, got %s", cfg.HTTPAddr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NOTIFIER_HTTP_ADDR", ":7070")
	t.Setenv("NOTIFIER_POSTGRES_URL", "postgres://db:5432/x")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Errorf("expected :7070, got %s", cfg.HTTPAddr)
	}
	if cfg.PostgresURL != "postgres://db:5432/x" {
		t.Errorf("env override not applied: %s", cfg.PostgresURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.HTTPAddr = "" }},
		{"zero retries", func(c *Config) { c.Queue.MaxRetries = 0 }},
		{"zero batch", func(c *Config) { c.Queue.BatchSize = 0 }},
		{"zero workers", func(c *Config) { c.Delivery.Workers = 0 }},
		{"floor above one", func(c *Config) { c.Monitor.DeliveryRateFloor = 1.5 }},
		{"warning above critical", func(c *Config) { c.Monitor.FailureRateWarning = 0.9 }},
		{"bad fallback channel", func(c *Config) { c.Delivery.FallbackOrder = []domain.Channel{"pigeon"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
