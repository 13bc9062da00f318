// Package ledgerdb is the durable ledger store: trades keyed by execution id,
// balance snapshots ordered per account, and a single settings record.
package ledgerdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ledgerd/config"
	"ledgerd/internal/ledger"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrCorrupt marks an unreadable on-disk ledger. The store fails closed:
// initialization errors out instead of starting with an empty ledger.
var ErrCorrupt = errors.New("ledger storage unreadable")

type Client struct {
	DB *gorm.DB
}

// Open connects to the configured backend without migrating.
func Open(cfg config.DatabaseConfig, env string) (*Client, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create ledger directory: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(cfg.Path), gormCfg)
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN(env)), gormCfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger storage: %w", err)
	}

	return &Client{DB: db}, nil
}

// Initialize connects, optionally bootstraps the postgres database, and runs
// the migrations. Any failure here is fatal to startup by design.
func Initialize(cfg config.DatabaseConfig, env string, createDB bool) (*Client, error) {
	if cfg.Driver == "postgres" && createDB {
		if err := CreateDatabase(cfg, env); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	client, err := Open(cfg, env)
	if err != nil {
		return nil, err
	}

	if err := client.AutoMigrate(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: migration failed: %v", ErrCorrupt, err)
	}

	return client, nil
}

func (c *Client) AutoMigrate() error {
	if err := c.DB.AutoMigrate(&TradeRecord{}, &BalanceRecord{}, &SettingsRecord{}); err != nil {
		return fmt.Errorf("auto-migrate ledger tables: %w", err)
	}
	return nil
}

// LedgerData is the full reconstructed ledger handed to the engine at startup.
type LedgerData struct {
	Trades        []ledger.Trade
	LastSnapshots map[string]ledger.BalanceSnapshot // latest persisted snapshot per account
}

// LoadAll reconstructs the in-memory ledger from durable storage. It fails
// closed: a partial or unreadable read is an error, never an empty ledger.
func (c *Client) LoadAll(ctx context.Context) (*LedgerData, error) {
	var records []TradeRecord
	if err := c.DB.WithContext(ctx).Order("executed_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("%w: load trades: %v", ErrCorrupt, err)
	}

	data := &LedgerData{
		Trades:        make([]ledger.Trade, 0, len(records)),
		LastSnapshots: make(map[string]ledger.BalanceSnapshot),
	}
	for _, r := range records {
		data.Trades = append(data.Trades, r.Trade())
	}

	var accounts []string
	if err := c.DB.WithContext(ctx).
		Model(&BalanceRecord{}).
		Distinct("account_id").
		Pluck("account_id", &accounts).Error; err != nil {
		return nil, fmt.Errorf("%w: load balance accounts: %v", ErrCorrupt, err)
	}
	for _, account := range accounts {
		snap, err := c.LatestSnapshot(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("%w: load latest snapshot for %s: %v", ErrCorrupt, account, err)
		}
		if snap != nil {
			data.LastSnapshots[account] = *snap
		}
	}

	return data, nil
}

func (c *Client) IsHealthy(ctx context.Context) bool {
	db, err := c.DB.DB()
	if err != nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (c *Client) Close() error {
	db, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}
