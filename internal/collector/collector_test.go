package collector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ledgerd/config"
	"ledgerd/internal/ledger"
	"ledgerd/internal/ledger/reconcile"
	"ledgerd/pkg/storage/ledgerdb"

	"go.uber.org/zap"
)

// go test -v --run TestApplyStagedPersistsSettings
func TestApplyStagedPersistsSettings(t *testing.T) {
	ctx := context.Background()

	store, err := ledgerdb.Initialize(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "ledger.db"),
	}, "dev", false)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer store.Close()

	state := ledger.NewAccountState()
	engine := reconcile.New(reconcile.Config{}, store, state, zap.NewNop())
	poller := NewPoller(&fakeRequester{}, state, 5*time.Second, zap.NewNop())

	next := &config.Config{}
	next.Broker.Host = "gateway.internal"
	next.Broker.Port = 4002
	next.Broker.ClientID = 7
	next.Broker.AutoConnect = true
	next.Broker.AutoRefreshInterval = 30 * time.Second
	next.Ledger.SnapshotEpsilon = 0.5
	next.Ledger.MinSnapshotInterval = 5 * time.Minute

	applyStaged(ctx, store, engine, poller, next, zap.NewNop())

	if got := time.Duration(poller.interval.Load()); got != 30*time.Second {
		t.Errorf("poll interval not applied: %v", got)
	}

	stored, err := store.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if stored == nil {
		t.Fatal("staged config was not persisted to the settings row")
	}
	if stored.Host != "gateway.internal" || stored.Port != 4002 || stored.ClientID != 7 {
		t.Errorf("wrong persisted endpoint: %+v", stored)
	}
	if stored.AutoRefreshIntervalSecs != 30 || stored.MinSnapshotIntervalSecs != 300 {
		t.Errorf("wrong persisted intervals: %+v", stored)
	}
	if !stored.AutoConnectOnStartup {
		t.Errorf("auto-connect flag not persisted: %+v", stored)
	}
}

// go test -v --run TestApplyStagedReplacesSettingsRow
func TestApplyStagedReplacesSettingsRow(t *testing.T) {
	ctx := context.Background()

	store, err := ledgerdb.Initialize(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "ledger.db"),
	}, "dev", false)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer store.Close()

	seed := &config.Config{}
	seed.Broker.Host = "127.0.0.1"
	seed.Broker.Port = 7497
	if err := reconcileSettings(ctx, store, seed); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	state := ledger.NewAccountState()
	engine := reconcile.New(reconcile.Config{}, store, state, zap.NewNop())
	poller := NewPoller(&fakeRequester{}, state, 5*time.Second, zap.NewNop())

	next := &config.Config{}
	next.Broker.Host = "gateway.internal"
	next.Broker.Port = 4002
	applyStaged(ctx, store, engine, poller, next, zap.NewNop())

	stored, err := store.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if stored == nil || stored.Host != "gateway.internal" || stored.Port != 4002 {
		t.Errorf("settings row not replaced after first run: %+v", stored)
	}
}
