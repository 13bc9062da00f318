package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Broker    BrokerConfig    `mapstructure:"broker"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	PriceFeed PriceFeedConfig `mapstructure:"pricefeed"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// BrokerConfig describes the terminal gateway session.
type BrokerConfig struct {
	Host                string        `mapstructure:"host"`
	Port                int           `mapstructure:"port"`
	ClientID            int           `mapstructure:"client_id"`
	AutoConnect         bool          `mapstructure:"auto_connect"`          // connect as soon as the collector starts
	AutoRefreshInterval time.Duration `mapstructure:"auto_refresh_interval"` // executions refresh + balance poll cadence
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
}

// URL builds the gateway stream endpoint.
func (b BrokerConfig) URL() string {
	return fmt.Sprintf("ws://%s:%d/v1/stream?clientId=%d", b.Host, b.Port, b.ClientID)
}

// LedgerConfig tunes the reconciliation policy.
type LedgerConfig struct {
	SnapshotEpsilon        float64       `mapstructure:"snapshot_epsilon"`          // balance change below this is noise
	MinSnapshotInterval    time.Duration `mapstructure:"min_snapshot_interval"`     // sampling floor for unchanged balances
	AlwaysRecordOnInterval bool          `mapstructure:"always_record_on_interval"` // record a snapshot every interval even if unchanged
	RetryLimit             int           `mapstructure:"retry_limit"`               // storage write retries before escalating
	RetryBackoff           time.Duration `mapstructure:"retry_backoff"`
	QueueSize              int           `mapstructure:"queue_size"` // event queue depth before backpressure
}

type PriceFeedConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Exchanges []string      `mapstructure:"exchanges"` // tried in order until one returns a price
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"

	// Rotation limits for the file sink
	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// Loader owns the viper instance so the config file can be re-read on change.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader prepares a loader for the given config file path.
// Environment variables with underscore notation (e.g., BROKER_HOST) override file values.
func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return &Loader{v: v, path: path}
}

// Load reads the config file and unmarshals it. A missing file is not an
// error; defaults apply.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", l.path, err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Watch re-reads the file whenever it changes and hands the result to onChange.
// The caller decides when the new config takes effect; changes are never
// applied to a live broker session (only between connection cycles).
func (l *Loader) Watch(onChange func(*Config, error)) {
	l.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := l.Load()
		onChange(cfg, err)
	})
	l.v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("broker.host", "127.0.0.1")
	v.SetDefault("broker.port", 7497)
	v.SetDefault("broker.client_id", 1)
	v.SetDefault("broker.auto_connect", true)
	v.SetDefault("broker.auto_refresh_interval", 5*time.Second)
	v.SetDefault("broker.dial_timeout", 10*time.Second)

	v.SetDefault("ledger.snapshot_epsilon", 0.01)
	v.SetDefault("ledger.min_snapshot_interval", time.Minute)
	v.SetDefault("ledger.always_record_on_interval", true)
	v.SetDefault("ledger.retry_limit", 3)
	v.SetDefault("ledger.retry_backoff", 250*time.Millisecond)
	v.SetDefault("ledger.queue_size", 256)

	v.SetDefault("pricefeed.base_url", "")
	v.SetDefault("pricefeed.timeout", 10*time.Second)
	v.SetDefault("pricefeed.exchanges", []string{"NASDAQ", "NYSE", "AMEX", "ARCA"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 7)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/ledger.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")
}
