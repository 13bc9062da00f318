package ledgerdb

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoadSettings returns the persisted settings row, or nil on first run.
func (c *Client) LoadSettings(ctx context.Context) (*SettingsRecord, error) {
	var record SettingsRecord
	err := c.DB.WithContext(ctx).First(&record, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// SaveSettings replaces the settings row atomically.
func (c *Client) SaveSettings(ctx context.Context, s SettingsRecord) error {
	s.ID = 1
	return c.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&s).Error
}
