package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.RetentionWindow != time.Hour {
		t.Errorf("RetentionWindow = %v", cfg.RetentionWindow)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval)
	}
	if cfg.WindowLimit != 10 {
		t.Errorf("WindowLimit = %d", cfg.WindowLimit)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.SettleDelay != 2*time.Second {
		t.Errorf("SettleDelay = %v", cfg.SettleDelay)
	}
	if cfg.RevalidateTimeout != 5*time.Second {
		t.Errorf("RevalidateTimeout = %v", cfg.RevalidateTimeout)
	}
	if cfg.ArchiveS3Prefix != "beacon/events" {
		t.Errorf("ArchiveS3Prefix = %q", cfg.ArchiveS3Prefix)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BEACON_HTTP_ADDR", ":9999")
	t.Setenv("BEACON_RETENTION_WINDOW", "30m")
	t.Setenv("BEACON_WINDOW_LIMIT", "25")
	t.Setenv("BEACON_ADMIN_TOKEN", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.RetentionWindow != 30*time.Minute {
		t.Errorf("RetentionWindow = %v", cfg.RetentionWindow)
	}
	if cfg.WindowLimit != 25 {
		t.Errorf("WindowLimit = %d", cfg.WindowLimit)
	}
	if cfg.AdminToken != "secret" {
		t.Errorf("AdminToken = %q", cfg.AdminToken)
	}
}

func TestWindowLimitClamped(t *testing.T) {
	t.Setenv("BEACON_WINDOW_LIMIT", "500")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WindowLimit != MaxWindowLimit {
		t.Errorf("WindowLimit = %d, want clamp to %d", cfg.WindowLimit, MaxWindowLimit)
	}

	t.Setenv("BEACON_WINDOW_LIMIT", "0")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WindowLimit != 1 {
		t.Errorf("WindowLimit = %d, want floor of 1", cfg.WindowLimit)
	}
}

func TestBadDurationRejected(t *testing.T) {
	t.Setenv("BEACON_SWEEP_INTERVAL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}
