// Package config loads runtime configuration from YAML, .env and SHADOW_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/logger"
)

// EnvPrefix is the prefix for environment overrides, e.g. SHADOW_STORAGE_POSTGRES_DSN.
const EnvPrefix = "SHADOW"

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the root configuration.
type Config struct {
	Log             logger.Config           `mapstructure:"log"`
	StartingCapital float64                 `mapstructure:"starting_capital"`
	Timeframes      []string                `mapstructure:"timeframes"`
	Strategies      []domain.StrategyConfig `mapstructure:"strategies"`
	Traders         []domain.TraderProfile  `mapstructure:"traders"`
	Workers         int                     `mapstructure:"workers"`
	Quotes          QuotesConfig            `mapstructure:"quotes"`
	Polymarket      PolymarketConfig        `mapstructure:"polymarket"`
	Storage         StorageConfig           `mapstructure:"storage"`
	Poll            PollConfig              `mapstructure:"poll"`
	Normalizer      NormalizerConfig        `mapstructure:"normalizer"`
}

// QuotesConfig configures the historical quote source.
type QuotesConfig struct {
	CacheSize      int           `mapstructure:"cache_size"`
	HistoryTimeout time.Duration `mapstructure:"history_timeout"`
	FeedURL        string        `mapstructure:"feed_url"`
	LiveFeed       bool          `mapstructure:"live_feed"`
}

// PolymarketConfig configures the activity and price history client.
type PolymarketConfig struct {
	DataURL           string        `mapstructure:"data_url"`
	CLOBURL           string        `mapstructure:"clob_url"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxActivity       int           `mapstructure:"max_activity"`
	PageSize          int           `mapstructure:"page_size"`
}

// StorageConfig holds database connection strings. Empty means in-memory.
type StorageConfig struct {
	PostgresDSN      string `mapstructure:"postgres_dsn"`
	PostgresMaxConns int32  `mapstructure:"postgres_max_conns"` // 0 keeps the dsn or pgx default
	ClickhouseDSN    string `mapstructure:"clickhouse_dsn"`
}

// PollConfig configures incremental polling.
type PollConfig struct {
	Schedule    string `mapstructure:"schedule"` // cron expression
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// NormalizerConfig adds noise title patterns to the built-in set.
type NormalizerConfig struct {
	ExtraNoisePatterns []string `mapstructure:"extra_noise_patterns"`
}

// Load reads configuration. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("starting_capital", 10000.0)
	v.SetDefault("timeframes", []string{
		domain.Timeframe3M, domain.Timeframe6M, domain.Timeframe1Y, domain.TimeframeYTD, domain.TimeframeAll,
	})
	v.SetDefault("workers", 4)

	v.SetDefault("quotes.cache_size", 10000)
	v.SetDefault("quotes.history_timeout", "10s")
	v.SetDefault("quotes.feed_url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("quotes.live_feed", false)

	v.SetDefault("polymarket.data_url", "https://data-api.polymarket.com")
	v.SetDefault("polymarket.clob_url", "https://clob.polymarket.com")
	v.SetDefault("polymarket.requests_per_second", 3.3)
	v.SetDefault("polymarket.timeout", "30s")
	v.SetDefault("polymarket.max_activity", 500)
	v.SetDefault("polymarket.page_size", 100)

	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.postgres_max_conns", 0)
	v.SetDefault("storage.clickhouse_dsn", "")

	v.SetDefault("poll.schedule", "@every 15m")
	v.SetDefault("poll.metrics_addr", ":9090")
}

// normalize undoes viper's key lower-casing where keys carry meaning.
func (c *Config) normalize() {
	for i := range c.Strategies {
		tiers := c.Strategies[i].Sizing.Tiers
		if tiers == nil {
			continue
		}
		upper := make(map[string]float64, len(tiers))
		for tier, amount := range tiers {
			upper[strings.ToUpper(tier)] = amount
		}
		c.Strategies[i].Sizing.Tiers = upper
	}
	for i := range c.Traders {
		c.Traders[i].Tier = domain.Tier(strings.ToUpper(string(c.Traders[i].Tier)))
		c.Traders[i].InsiderRisk = domain.InsiderRisk(strings.ToUpper(string(c.Traders[i].InsiderRisk)))
	}
}

// Validate fails fast on settings the runners cannot work with.
func (c *Config) Validate() error {
	if c.StartingCapital <= 0 {
		return fmt.Errorf("%w: starting_capital must be positive", ErrInvalid)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalid)
	}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("%w: at least one timeframe is required", ErrInvalid)
	}
	now := time.Now()
	for _, name := range c.Timeframes {
		if _, ok := domain.TimeframeByName(now, name); !ok {
			return fmt.Errorf("%w: unknown timeframe %q", ErrInvalid, name)
		}
	}

	seen := make(map[string]bool, len(c.Strategies))
	for _, s := range c.Strategies {
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate strategy id %q", ErrInvalid, s.ID)
		}
		seen[s.ID] = true
		if err := s.WithDefaults().Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}

	for _, t := range c.Traders {
		if t.TraderID == "" {
			return fmt.Errorf("%w: trader without trader_id", ErrInvalid)
		}
	}

	if c.Quotes.CacheSize < 0 {
		return fmt.Errorf("%w: quotes.cache_size must not be negative", ErrInvalid)
	}
	if c.Polymarket.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: polymarket.requests_per_second must not be negative", ErrInvalid)
	}
	if c.Polymarket.PageSize < 1 || c.Polymarket.MaxActivity < 1 {
		return fmt.Errorf("%w: polymarket.page_size and max_activity must be positive", ErrInvalid)
	}
	if c.Poll.Schedule != "" {
		if _, err := cron.ParseStandard(c.Poll.Schedule); err != nil {
			return fmt.Errorf("%w: poll.schedule: %v", ErrInvalid, err)
		}
	}
	return nil
}

// TraderBook indexes the configured profiles by lower-case trader id.
func (c *Config) TraderBook() domain.TraderBook {
	book := make(domain.TraderBook, len(c.Traders))
	for _, t := range c.Traders {
		book[strings.ToLower(t.TraderID)] = t
	}
	return book
}

// ResolveTimeframes maps the configured names to windows anchored at now.
func (c *Config) ResolveTimeframes(now time.Time) []domain.Timeframe {
	out := make([]domain.Timeframe, 0, len(c.Timeframes))
	for _, name := range c.Timeframes {
		if tf, ok := domain.TimeframeByName(now, name); ok {
			out = append(out, tf)
		}
	}
	return out
}
