package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigParsesHumanDurations(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
rooms:
  stale_retention: 48h
  sweep_interval: 5m
`)

	config, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if config.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want :9090", config.Server.Addr)
	}
	if got := time.Duration(config.Rooms.StaleRetention); got != 48*time.Hour {
		t.Errorf("stale_retention = %s, want 48h", got)
	}
	if got := time.Duration(config.Rooms.SweepInterval); got != 5*time.Minute {
		t.Errorf("sweep_interval = %s, want 5m", got)
	}
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	config, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got := time.Duration(config.Rooms.StaleRetention); got != 24*time.Hour {
		t.Errorf("default stale_retention = %s, want 24h", got)
	}
	if got := time.Duration(config.Rooms.SweepInterval); got != 10*time.Minute {
		t.Errorf("default sweep_interval = %s, want 10m", got)
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
rooms:
  stale_retention: soon
`)

	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
