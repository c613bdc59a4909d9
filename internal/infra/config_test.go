package infra

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresBotToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig accepted an empty BOT_TOKEN")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "test-token")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port mismatch: got %q want 8080", cfg.Port)
	}
	if cfg.WorkerSlots != 4 {
		t.Fatalf("WorkerSlots mismatch: got %d want 4", cfg.WorkerSlots)
	}
	if cfg.GeneratorTimeout != 600*time.Second {
		t.Fatalf("GeneratorTimeout mismatch: got %s", cfg.GeneratorTimeout)
	}
	if cfg.ResultTTL != 3600*time.Second {
		t.Fatalf("ResultTTL mismatch: got %s", cfg.ResultTTL)
	}
	if cfg.AwaitTimeout != cfg.GeneratorTimeout+30*time.Second {
		t.Fatalf("AwaitTimeout mismatch: got %s", cfg.AwaitTimeout)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL should default to empty, got %q", cfg.DatabaseURL)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "test-token")
	t.Setenv("WORKER_SLOTS", "8")
	t.Setenv("GENERATOR_TIMEOUT_SECONDS", "120")
	t.Setenv("AWAIT_TIMEOUT_SECONDS", "200")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.WorkerSlots != 8 {
		t.Fatalf("WorkerSlots mismatch: got %d want 8", cfg.WorkerSlots)
	}
	if cfg.GeneratorTimeout != 120*time.Second {
		t.Fatalf("GeneratorTimeout mismatch: got %s", cfg.GeneratorTimeout)
	}
	if cfg.AwaitTimeout != 200*time.Second {
		t.Fatalf("AwaitTimeout mismatch: got %s", cfg.AwaitTimeout)
	}
}
