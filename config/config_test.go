package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// go test -v --run TestLoadDefaults
func TestLoadDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("missing config file must fall back to defaults: %v", err)
	}

	if cfg.Broker.Host != "127.0.0.1" || cfg.Broker.Port != 7497 {
		t.Errorf("unexpected broker defaults: %+v", cfg.Broker)
	}
	if cfg.Ledger.SnapshotEpsilon != 0.01 || cfg.Ledger.MinSnapshotInterval != time.Minute {
		t.Errorf("unexpected ledger defaults: %+v", cfg.Ledger)
	}
	if !cfg.Ledger.AlwaysRecordOnInterval {
		t.Error("interval heartbeat should default on")
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("unexpected database default: %+v", cfg.Database)
	}
	if len(cfg.PriceFeed.Exchanges) != 4 {
		t.Errorf("unexpected exchange defaults: %v", cfg.PriceFeed.Exchanges)
	}
}

// go test -v --run TestLoadFile
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
broker:
  host: gateway.internal
  port: 4002
  client_id: 7
  auto_connect: true
ledger:
  snapshot_epsilon: 0.5
  min_snapshot_interval: 5m
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Broker.Host != "gateway.internal" || cfg.Broker.Port != 4002 || cfg.Broker.ClientID != 7 {
		t.Errorf("file values not applied: %+v", cfg.Broker)
	}
	if !cfg.Broker.AutoConnect {
		t.Error("auto_connect not applied")
	}
	if cfg.Ledger.SnapshotEpsilon != 0.5 || cfg.Ledger.MinSnapshotInterval != 5*time.Minute {
		t.Errorf("ledger overrides not applied: %+v", cfg.Ledger)
	}
	// Untouched keys keep defaults
	if cfg.Ledger.RetryLimit != 3 {
		t.Errorf("default lost on partial file: %+v", cfg.Ledger)
	}

	want := "ws://gateway.internal:4002/v1/stream?clientId=7"
	if got := cfg.Broker.URL(); got != want {
		t.Errorf("unexpected gateway URL: %s", got)
	}
}
