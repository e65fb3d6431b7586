package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "submit_service.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file failed: %v", err)
	}
	return path
}

func TestLoadAppConfigBindsRateLimitAndTimeouts(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, `
server:
  addr: 127.0.0.1:9090
gateway:
  rateLimit:
    userMax: 5
    ipMax: 7
    window: 30s
  timeouts:
    db: 2s
    cache: 500ms
    mq: 4s
`)

	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}

	if cfg.Gateway.RateLimit.UserMax != 5 {
		t.Fatalf("userMax not bound, got %d", cfg.Gateway.RateLimit.UserMax)
	}
	if cfg.Gateway.RateLimit.IPMax != 7 {
		t.Fatalf("ipMax not bound, got %d", cfg.Gateway.RateLimit.IPMax)
	}
	if cfg.Gateway.RateLimit.Window != 30*time.Second {
		t.Fatalf("window not bound, got %v", cfg.Gateway.RateLimit.Window)
	}
	if cfg.Gateway.Timeouts.DB != 2*time.Second {
		t.Fatalf("db timeout not bound, got %v", cfg.Gateway.Timeouts.DB)
	}
	if cfg.Gateway.Timeouts.Cache != 500*time.Millisecond {
		t.Fatalf("cache timeout not bound, got %v", cfg.Gateway.Timeouts.Cache)
	}
	if cfg.Gateway.Timeouts.MQ != 4*time.Second {
		t.Fatalf("mq timeout not bound, got %v", cfg.Gateway.Timeouts.MQ)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Fatalf("server addr not bound, got %s", cfg.Server.Addr)
	}
}

func TestLoadAppConfigAppliesDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, "server: {}\n")

	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}

	if cfg.Server.Addr != defaultHTTPAddr {
		t.Fatalf("expected default addr, got %s", cfg.Server.Addr)
	}
	if cfg.Topics.Jobs != "submissions.jobs" || cfg.Topics.Results != "submissions.results" {
		t.Fatalf("unexpected default topics: %+v", cfg.Topics)
	}
	if cfg.Gateway.RateLimit.UserMax != 30 || cfg.Gateway.RateLimit.IPMax != 60 {
		t.Fatalf("unexpected default rate limits: %+v", cfg.Gateway.RateLimit)
	}
	if cfg.Gateway.RateLimit.Window != time.Minute {
		t.Fatalf("unexpected default window: %v", cfg.Gateway.RateLimit.Window)
	}
	if cfg.Gateway.ResultConsumer.Group != "judgehub-gateway" {
		t.Fatalf("unexpected default consumer group: %s", cfg.Gateway.ResultConsumer.Group)
	}
}

func TestLoadAppConfigRejectsMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := loadAppConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
