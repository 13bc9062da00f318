package ledgerdb

import (
	"time"

	"ledgerd/internal/ledger"
)

// TradeRecord is one stored execution report. The broker execution id is the
// unique identity; re-deliveries land on the same row.
type TradeRecord struct {
	ID uint `gorm:"primaryKey"`

	ExecID    string `gorm:"type:text;not null;uniqueIndex:idx_trade_exec_id"`
	OrderRef  string `gorm:"type:text"`
	AccountID string `gorm:"type:text;not null;index:idx_trade_account"`
	Symbol    string `gorm:"type:text;not null"`
	Side      string `gorm:"type:varchar(8);not null"`

	Quantity    float64 `gorm:"type:numeric;not null"`
	Price       float64 `gorm:"type:numeric;not null"`
	Currency    string  `gorm:"type:varchar(8)"`
	Commission  float64 `gorm:"type:numeric;not null;default:0"`
	RealizedPnL float64 `gorm:"type:numeric;not null;default:0"`

	ExecutedAt time.Time `gorm:"not null;index:idx_trade_executed_at"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (TradeRecord) TableName() string {
	return "trades"
}

func (r TradeRecord) Trade() ledger.Trade {
	return ledger.Trade{
		ExecID:      r.ExecID,
		OrderRef:    r.OrderRef,
		AccountID:   r.AccountID,
		Symbol:      r.Symbol,
		Side:        ledger.Side(r.Side),
		Quantity:    r.Quantity,
		Price:       r.Price,
		Currency:    r.Currency,
		Commission:  r.Commission,
		RealizedPnL: r.RealizedPnL,
		ExecutedAt:  r.ExecutedAt,
	}
}

// ToTradeRecord converts a domain trade into its storage shape.
func ToTradeRecord(t ledger.Trade) *TradeRecord {
	return &TradeRecord{
		ExecID:      t.ExecID,
		OrderRef:    t.OrderRef,
		AccountID:   t.AccountID,
		Symbol:      t.Symbol,
		Side:        string(t.Side),
		Quantity:    t.Quantity,
		Price:       t.Price,
		Currency:    t.Currency,
		Commission:  t.Commission,
		RealizedPnL: t.RealizedPnL,
		ExecutedAt:  t.ExecutedAt,
	}
}

// BalanceRecord is one persisted NetLiquidation observation.
type BalanceRecord struct {
	ID uint `gorm:"primaryKey"`

	AccountID  string    `gorm:"type:text;not null;index:idx_balance_account_observed,priority:1"`
	Value      float64   `gorm:"type:numeric;not null"`
	Currency   string    `gorm:"type:varchar(8)"`
	ObservedAt time.Time `gorm:"not null;index:idx_balance_account_observed,priority:2"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

func (BalanceRecord) TableName() string {
	return "balance_snapshots"
}

func (r BalanceRecord) Snapshot() ledger.BalanceSnapshot {
	return ledger.BalanceSnapshot{
		AccountID:  r.AccountID,
		Value:      r.Value,
		Currency:   r.Currency,
		ObservedAt: r.ObservedAt,
	}
}

func ToBalanceRecord(s ledger.BalanceSnapshot) *BalanceRecord {
	return &BalanceRecord{
		AccountID:  s.AccountID,
		Value:      s.Value,
		Currency:   s.Currency,
		ObservedAt: s.ObservedAt,
	}
}

// SettingsRecord is the single persisted settings row. ID is pinned to 1 so
// saves are whole-record replaces.
type SettingsRecord struct {
	ID uint `gorm:"primaryKey"`

	Host                    string `gorm:"type:text;not null"`
	Port                    int    `gorm:"not null"`
	ClientID                int    `gorm:"not null"`
	AutoRefreshIntervalSecs int    `gorm:"not null"`
	AutoConnectOnStartup    bool   `gorm:"not null"`
	MinSnapshotIntervalSecs int    `gorm:"not null"`

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (SettingsRecord) TableName() string {
	return "settings"
}
