package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Cache.TTL != 7*24*time.Hour || cfg.Cache.LookAhead != 7*24*time.Hour {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Queue.MaxRetries != 3 || cfg.Queue.DeliveryTimeout != 10*time.Second || cfg.Queue.PollInterval != 2*time.Second {
		t.Fatalf("unexpected queue defaults: %+v", cfg.Queue)
	}
	if cfg.Network.ProbeTimeout != 3*time.Second || cfg.Network.MaxListeners != 64 {
		t.Fatalf("unexpected network defaults: %+v", cfg.Network)
	}
	if cfg.Preload.Interval != 30*time.Minute {
		t.Fatalf("preload interval = %s", cfg.Preload.Interval)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learnsync.yaml")
	content := []byte(`
api:
  base_url: https://school.example/api
cache:
  ttl: 48h
queue:
  max_retries: 4
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QUEUE_MAX_RETRIES", "6")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://school.example/api" {
		t.Fatalf("base url = %s", cfg.API.BaseURL)
	}
	if cfg.Cache.TTL != 48*time.Hour {
		t.Fatalf("ttl = %s", cfg.Cache.TTL)
	}
	if cfg.Queue.MaxRetries != 6 {
		t.Fatalf("environment should override the file, max_retries = %d", cfg.Queue.MaxRetries)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level = %s", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero retries", func(c *Config) { c.Queue.MaxRetries = 0 }},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"negative lookahead", func(c *Config) { c.Cache.LookAhead = -time.Hour }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}
