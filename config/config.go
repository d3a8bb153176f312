package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"fenrir/domain/asset"
)

// Config is the matcher's startup configuration.
type Config struct {
	Enable      bool   `mapstructure:"enable"`
	Account     string `mapstructure:"account"`
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`

	MinOrderFee     int64 `mapstructure:"min_order_fee"`
	OrderMatchTxFee int64 `mapstructure:"order_match_tx_fee"`

	JournalDataDir    string        `mapstructure:"journal_data_dir"`
	SnapshotsDataDir  string        `mapstructure:"snapshots_data_dir"`
	SnapshotsInterval time.Duration `mapstructure:"snapshots_interval"`
	PairsLogDir       string        `mapstructure:"pairs_log_dir"`
	OutboxDir         string        `mapstructure:"outbox_dir"`
	OrderHistoryFile  string        `mapstructure:"order_history_file"`

	MaxOpenOrders     int           `mapstructure:"max_open_orders"`
	MaxTimestampDiff  time.Duration `mapstructure:"max_timestamp_diff"`
	MaxOrderTTL       time.Duration `mapstructure:"max_order_ttl"`
	RequestTTL        time.Duration `mapstructure:"request_ttl"`
	ValidationTimeout time.Duration `mapstructure:"validation_timeout"`
	ReleaseDelay      time.Duration `mapstructure:"release_delay"`

	PriceAssets       []string `mapstructure:"price_assets"`
	PredefinedPairs   []string `mapstructure:"predefined_pairs"`
	BlacklistedAssets []string `mapstructure:"blacklisted_assets"`

	Kafka struct {
		Enable      bool     `mapstructure:"enable"`
		Brokers     []string `mapstructure:"brokers"`
		EventsTopic string   `mapstructure:"events_topic"`
		TxTopic     string   `mapstructure:"tx_topic"`
	} `mapstructure:"kafka"`

	Settlement struct {
		Mode    string `mapstructure:"mode"` // "embedded" or "node"
		NodeURL string `mapstructure:"node_url"`
	} `mapstructure:"settlement"`
}

// Load reads the config file (optional) with env overrides under the
// FENRIR_ prefix.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("enable", true)
	v.SetDefault("bind_address", "0.0.0.0")
	v.SetDefault("port", 6886)
	v.SetDefault("min_order_fee", 100_000)
	v.SetDefault("order_match_tx_fee", 100_000)
	v.SetDefault("journal_data_dir", "./data/journal")
	v.SetDefault("snapshots_data_dir", "./data/snapshots")
	v.SetDefault("snapshots_interval", time.Minute)
	v.SetDefault("pairs_log_dir", "./data/pairs")
	v.SetDefault("outbox_dir", "./data/outbox")
	v.SetDefault("order_history_file", "./data/history")
	v.SetDefault("max_open_orders", 1000)
	v.SetDefault("max_timestamp_diff", 90*time.Second)
	v.SetDefault("max_order_ttl", 30*24*time.Hour)
	v.SetDefault("request_ttl", 5*time.Second)
	v.SetDefault("validation_timeout", 5*time.Second)
	v.SetDefault("release_delay", 30*time.Second)
	v.SetDefault("kafka.events_topic", "matcher.events")
	v.SetDefault("kafka.tx_topic", "matcher.transactions")
	v.SetDefault("settlement.mode", "embedded")

	v.SetEnvPrefix("FENRIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}

// PriceAssetList parses the ordered priority list used by the
// canonical-orientation rule.
func (c *Config) PriceAssetList() ([]asset.Asset, error) {
	return parseAssets(c.PriceAssets)
}

func (c *Config) BlacklistedAssetList() ([]asset.Asset, error) {
	return parseAssets(c.BlacklistedAssets)
}

func parseAssets(in []string) ([]asset.Asset, error) {
	out := make([]asset.Asset, 0, len(in))
	for _, s := range in {
		a, err := asset.FromString(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// PredefinedPairList parses "AMOUNT-PRICE" pair specs.
func (c *Config) PredefinedPairList() ([]asset.Pair, error) {
	out := make([]asset.Pair, 0, len(c.PredefinedPairs))
	for _, s := range c.PredefinedPairs {
		amt, price, ok := strings.Cut(s, "-")
		if !ok {
			return nil, fmt.Errorf("bad pair spec %q", s)
		}
		a, err := asset.FromString(amt)
		if err != nil {
			return nil, err
		}
		p, err := asset.FromString(price)
		if err != nil {
			return nil, err
		}
		out = append(out, asset.NewPair(a, p))
	}
	return out, nil
}
