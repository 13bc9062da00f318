package ledgerdb

import (
	"context"
	"errors"
	"time"

	"ledgerd/internal/ledger"

	"gorm.io/gorm"
)

// AppendSnapshot persists one balance observation. Snapshots are append-only
// and immutable once stored.
func (c *Client) AppendSnapshot(ctx context.Context, s ledger.BalanceSnapshot) error {
	return c.DB.WithContext(ctx).Create(ToBalanceRecord(s)).Error
}

// QueryBalances returns snapshots for an account observed within [from, to),
// in observation order. An empty account matches all accounts.
func (c *Client) QueryBalances(ctx context.Context, account string, from, to time.Time) ([]ledger.BalanceSnapshot, error) {
	q := c.DB.WithContext(ctx).Model(&BalanceRecord{})
	if account != "" {
		q = q.Where("account_id = ?", account)
	}
	if !from.IsZero() {
		q = q.Where("observed_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("observed_at < ?", to)
	}

	var records []BalanceRecord
	if err := q.Order("account_id ASC, observed_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}

	out := make([]ledger.BalanceSnapshot, 0, len(records))
	for _, r := range records {
		out = append(out, r.Snapshot())
	}
	return out, nil
}

// LatestSnapshot returns the most recent persisted snapshot for an account,
// or nil when none exists.
func (c *Client) LatestSnapshot(ctx context.Context, account string) (*ledger.BalanceSnapshot, error) {
	var record BalanceRecord
	err := c.DB.WithContext(ctx).
		Where("account_id = ?", account).
		Order("observed_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s := record.Snapshot()
	return &s, nil
}

// PruneBalances deletes snapshots observed before the cutoff. Only the
// explicit retention path calls this; nothing expires automatically.
func (c *Client) PruneBalances(ctx context.Context, account string, before time.Time) error {
	q := c.DB.WithContext(ctx).Where("observed_at < ?", before)
	if account != "" {
		q = q.Where("account_id = ?", account)
	}
	return q.Delete(&BalanceRecord{}).Error
}
