package config

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDefaultSettingsParse(t *testing.T) {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		t.Fatalf("unmarshal embedded defaults: %v", err)
	}

	if cfg.Gateway.AutoBlockDelayMs != 5000 {
		t.Fatalf("auto_block_delay_ms = %d, want 5000", cfg.Gateway.AutoBlockDelayMs)
	}
	if cfg.Gateway.DefaultSiteID != "default" {
		t.Fatalf("default_site_id = %q, want default", cfg.Gateway.DefaultSiteID)
	}
	if cfg.Visits.PageSizeLimit != 200 {
		t.Fatalf("page_size_limit = %d, want 200", cfg.Visits.PageSizeLimit)
	}
}

func TestAutoBlockDelay(t *testing.T) {
	var cfg Config
	cfg.Gateway.AutoBlockDelayMs = 5000

	if got := cfg.AutoBlockDelay(); got != 5*time.Second {
		t.Fatalf("AutoBlockDelay = %v, want 5s", got)
	}

	cfg.Gateway.AutoBlockDelayMs = 0
	if got := cfg.AutoBlockDelay(); got != 0 {
		t.Fatalf("AutoBlockDelay = %v, want 0", got)
	}
}

func TestSnapshotIntervalFallback(t *testing.T) {
	var cfg Config
	if got := cfg.SnapshotInterval(); got != 30*time.Second {
		t.Fatalf("SnapshotInterval = %v, want 30s fallback", got)
	}

	cfg.Presence.SnapshotIntervalSeconds = 5
	if got := cfg.SnapshotInterval(); got != 5*time.Second {
		t.Fatalf("SnapshotInterval = %v, want 5s", got)
	}
}
