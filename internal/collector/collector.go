// Package collector wires the broker session, normalizer, reconciliation
// engine, and durable ledger into the running pipeline.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ledgerd/config"
	"ledgerd/internal/ledger"
	"ledgerd/internal/ledger/normalize"
	"ledgerd/internal/ledger/reconcile"
	"ledgerd/pkg/ibgw"
	"ledgerd/pkg/storage/ledgerdb"

	"go.uber.org/zap"
)

// Run starts the ingestion pipeline and blocks until ctx is cancelled. On
// shutdown, buffered events are drained to durable storage before returning.
func Run(ctx context.Context, loader *config.Loader, cfg *config.Config, logger *zap.Logger) error {
	// Storage fails closed: an unreadable ledger halts startup rather than
	// starting empty and misleading the operator.
	store, err := ledgerdb.Initialize(cfg.Database, cfg.Log.Environment, cfg.Database.Driver == "postgres")
	if err != nil {
		return fmt.Errorf("ledger initialization: %w", err)
	}
	defer store.Close()

	data, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("ledger initialization: %w", err)
	}
	logger.Info("ledger loaded",
		zap.Int("trades", len(data.Trades)),
		zap.Int("accounts", len(data.LastSnapshots)))

	if err := reconcileSettings(ctx, store, cfg); err != nil {
		return err
	}

	state := ledger.NewAccountState()
	engine := reconcile.New(reconcile.Config{
		SnapshotEpsilon:        cfg.Ledger.SnapshotEpsilon,
		MinSnapshotInterval:    cfg.Ledger.MinSnapshotInterval,
		AlwaysRecordOnInterval: cfg.Ledger.AlwaysRecordOnInterval,
		RetryLimit:             cfg.Ledger.RetryLimit,
		RetryBackoff:           cfg.Ledger.RetryBackoff,
		QueueSize:              cfg.Ledger.QueueSize,
	}, store, state, logger)
	engine.Seed(data.Trades, data.LastSnapshots)
	engine.Start(ctx)

	client := ibgw.NewClient(cfg.Broker.URL(), cfg.Broker.DialTimeout, logger)
	client.SetMessageHandler(func(msg []byte) {
		ev, err := normalize.Normalize(msg)
		if err != nil {
			if errors.Is(err, normalize.ErrMalformedExecution) {
				logger.Warn("dropping malformed event", zap.Error(err))
			}
			// Irrelevant frames (acks, other summary tags) are discarded silently
			return
		}
		engine.Apply(ev)
	})
	client.SetStateHandler(func(s ibgw.State) {
		engine.SetConnState(connState(s))
	})

	poller := NewPoller(client, state, cfg.Broker.AutoRefreshInterval, logger)
	engine.SetOnConnected(poller.PollNow)

	var dialOnce sync.Once
	startDial := func() {
		dialOnce.Do(func() {
			go connectLoop(ctx, client, logger)
		})
	}

	// Config changes are staged and only take effect between connection
	// cycles, never mid-session. The endpoint is handed to the client right
	// away because it only matters on the next dial, and enabling
	// auto_connect starts the first session immediately.
	var pending atomic.Pointer[config.Config]
	loader.Watch(func(next *config.Config, err error) {
		if err != nil {
			logger.Warn("ignoring config change", zap.Error(err))
			return
		}
		pending.Store(next)
		client.SetEndpoint(next.Broker.URL())
		logger.Info("config change staged; applies on next connection cycle")
		if next.Broker.AutoConnect {
			startDial()
		}
	})

	// Presentation boundary: notifications become log lines here.
	go func() {
		for {
			select {
			case n := <-engine.Notifications():
				logNotification(logger, n)
				if n.Kind == reconcile.ConnectionChanged && n.Conn == ledger.Connected {
					if next := pending.Swap(nil); next != nil {
						applyStaged(ctx, store, engine, poller, next, logger)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if cfg.Broker.AutoConnect {
		startDial()
	} else {
		logger.Info("auto-connect disabled; session starts when broker.auto_connect is enabled")
	}
	go poller.Run(ctx)

	<-ctx.Done()

	logger.Info("shutting down: draining buffered events")
	client.Close()
	engine.Close()
	select {
	case <-engine.Done():
	case <-time.After(10 * time.Second):
		logger.Warn("event drain timed out")
	}
	if err := engine.PersistFailure(); err != nil {
		logger.Error("ledger has unsaved writes", zap.Error(err))
	}
	return nil
}

// applyStaged pushes a staged config into the running components and persists
// the settings row. Called only at a connection-cycle boundary; the gateway
// endpoint was already handed to the client when the change was staged.
func applyStaged(ctx context.Context, store *ledgerdb.Client, engine *reconcile.Engine, poller *Poller, next *config.Config, logger *zap.Logger) {
	poller.SetInterval(next.Broker.AutoRefreshInterval)
	engine.SetSampling(
		next.Ledger.SnapshotEpsilon,
		next.Ledger.MinSnapshotInterval,
		next.Ledger.AlwaysRecordOnInterval,
	)
	if err := store.SaveSettings(ctx, settingsRecord(next)); err != nil {
		logger.Warn("failed to persist settings", zap.Error(err))
	}
	logger.Info("staged config applied",
		zap.String("gateway", next.Broker.URL()),
		zap.Duration("autoRefreshInterval", next.Broker.AutoRefreshInterval),
		zap.Duration("minSnapshotInterval", next.Ledger.MinSnapshotInterval))
}

// connectLoop dials until the first successful session, then hands off to the
// client's own reconnect handling.
func connectLoop(ctx context.Context, client *ibgw.Client, logger *zap.Logger) {
	const retryAfter = 10 * time.Second
	for {
		if err := client.Connect(); err == nil {
			client.Listen()
			return
		}
		logger.Warn("gateway unavailable; retrying", zap.Duration("after", retryAfter))
		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return
		}
	}
}

// reconcileSettings keeps the persisted settings row and the loaded config in
// step: the stored record wins after first run, the config seeds it before.
func reconcileSettings(ctx context.Context, store *ledgerdb.Client, cfg *config.Config) error {
	stored, err := store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("%w: settings: %v", ledgerdb.ErrCorrupt, err)
	}

	if stored == nil {
		return store.SaveSettings(ctx, settingsRecord(cfg))
	}

	cfg.Broker.Host = stored.Host
	cfg.Broker.Port = stored.Port
	cfg.Broker.ClientID = stored.ClientID
	cfg.Broker.AutoConnect = stored.AutoConnectOnStartup
	if stored.AutoRefreshIntervalSecs > 0 {
		cfg.Broker.AutoRefreshInterval = time.Duration(stored.AutoRefreshIntervalSecs) * time.Second
	}
	if stored.MinSnapshotIntervalSecs > 0 {
		cfg.Ledger.MinSnapshotInterval = time.Duration(stored.MinSnapshotIntervalSecs) * time.Second
	}
	return nil
}

func settingsRecord(cfg *config.Config) ledgerdb.SettingsRecord {
	return ledgerdb.SettingsRecord{
		Host:                    cfg.Broker.Host,
		Port:                    cfg.Broker.Port,
		ClientID:                cfg.Broker.ClientID,
		AutoRefreshIntervalSecs: int(cfg.Broker.AutoRefreshInterval.Seconds()),
		AutoConnectOnStartup:    cfg.Broker.AutoConnect,
		MinSnapshotIntervalSecs: int(cfg.Ledger.MinSnapshotInterval.Seconds()),
	}
}

func connState(s ibgw.State) ledger.ConnState {
	switch s {
	case ibgw.StateConnecting:
		return ledger.Connecting
	case ibgw.StateConnected:
		return ledger.Connected
	default:
		return ledger.Disconnected
	}
}

func logNotification(logger *zap.Logger, n reconcile.Notification) {
	switch n.Kind {
	case reconcile.TradeAdded:
		logger.Info("notify: trade added", zap.String("execId", n.Trade.ExecID))
	case reconcile.TradeUpdated:
		logger.Info("notify: trade updated", zap.String("execId", n.Trade.ExecID))
	case reconcile.BalanceRecorded:
		logger.Info("notify: balance recorded", zap.String("account", n.Snapshot.AccountID))
	case reconcile.ConnectionChanged:
		logger.Info("notify: connection", zap.String("state", n.Conn.String()))
	case reconcile.PersistFailed:
		// The one failure class that must stay user-visible
		logger.Error("notify: ledger write failed; data not saved", zap.Error(n.Err))
	}
}
