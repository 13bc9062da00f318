package ledgerdb

import (
	"context"
	"errors"
	"time"

	"ledgerd/internal/ledger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertTrade writes a trade through to durable storage. A row with the same
// execution id is replaced in place (broker-side correction); the call only
// returns once the write is flushed, so a nil error means the row survives a
// restart.
func (c *Client) UpsertTrade(ctx context.Context, t ledger.Trade) error {
	record := ToTradeRecord(t)
	return c.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "exec_id"}},
		UpdateAll: true,
	}).Create(record).Error
}

// GetTrade returns the stored trade for an execution id, or nil if absent.
func (c *Client) GetTrade(ctx context.Context, execID string) (*ledger.Trade, error) {
	var record TradeRecord
	err := c.DB.WithContext(ctx).Where("exec_id = ?", execID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := record.Trade()
	return &t, nil
}

// QueryTrades returns trades executed within [from, to), ordered by broker
// execution time regardless of arrival order. Zero bounds are open-ended.
func (c *Client) QueryTrades(ctx context.Context, from, to time.Time) ([]ledger.Trade, error) {
	q := c.DB.WithContext(ctx).Model(&TradeRecord{})
	if !from.IsZero() {
		q = q.Where("executed_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("executed_at < ?", to)
	}

	var records []TradeRecord
	if err := q.Order("executed_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}

	out := make([]ledger.Trade, 0, len(records))
	for _, r := range records {
		out = append(out, r.Trade())
	}
	return out, nil
}

// CountTrades returns the ledger size.
func (c *Client) CountTrades(ctx context.Context) (int64, error) {
	var n int64
	err := c.DB.WithContext(ctx).Model(&TradeRecord{}).Count(&n).Error
	return n, err
}
