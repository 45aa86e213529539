// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App            AppConfig               `mapstructure:"app"`
	Server         ServerConfig            `mapstructure:"server"`
	Database       DatabaseConfig          `mapstructure:"database"`
	Recommendation RecommendationConfig    `mapstructure:"recommendation"`
	Cache          CacheConfig             `mapstructure:"cache"`
	Breakers       BreakersConfig          `mapstructure:"breakers"`
	Markets        MarketsConfig           `mapstructure:"markets"`
	Warmup         WarmupConfig            `mapstructure:"warmup"`
	Logging        LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	ReadTimeout    int `mapstructure:"read_timeout"`    // milliseconds
	WriteTimeout   int `mapstructure:"write_timeout"`   // milliseconds
	RequestTimeout int `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Recommendation pipeline ---

type RecommendationConfig struct {
	// DefaultWeight is the content weight w used when a request omits it.
	DefaultWeight float64 `mapstructure:"default_weight"`
	// MaxN bounds the number of results a single request may ask for.
	MaxN int `mapstructure:"max_n"`
	// MaxExtra bounds the over-fetch used to cover expected exclusions.
	MaxExtra int `mapstructure:"max_extra"`
	// PreferMultiSource breaks score ties in favour of candidates that
	// appear in both sources. Kept configurable; the rule is policy, not law.
	PreferMultiSource bool `mapstructure:"prefer_multi_source"`
	// SourceTimeout bounds each candidate source call, in milliseconds.
	SourceTimeout int `mapstructure:"source_timeout"`
	// ExclusionRecencyDays bounds how far back interaction events count.
	ExclusionRecencyDays int `mapstructure:"exclusion_recency_days"`
	// DiversityQuota caps how many fallback results one category may fill.
	DiversityQuota int `mapstructure:"diversity_quota"`

	Collaborative CollaborativeConfig `mapstructure:"collaborative"`
}

type CollaborativeConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// --- Caching ---

type CacheConfig struct {
	// ResultTTL is the semantic-intent result cache TTL, in seconds.
	ResultTTL int `mapstructure:"result_ttl"`
	// ProductTTL is the fast-tier product cache TTL, in seconds.
	ProductTTL int `mapstructure:"product_ttl"`
	// LocalSize is the in-process tier capacity (entries).
	LocalSize int `mapstructure:"local_size"`
	// LocalTTL is the in-process tier TTL, in seconds.
	LocalTTL int `mapstructure:"local_ttl"`
	// KeyPrefix namespaces every key in the backing store.
	KeyPrefix string `mapstructure:"key_prefix"`
	// Timeout bounds each backing store call, in milliseconds.
	Timeout int `mapstructure:"timeout"`
}

// --- Circuit breakers ---

// BreakerConfig configures a single breaker: open after FailureThreshold
// consecutive failures, probe again after Cooldown milliseconds.
type BreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	Cooldown         int `mapstructure:"cooldown"` // milliseconds
}

// BreakersConfig holds the independent breaker instances for each remote
// dependency.
type BreakersConfig struct {
	Content       BreakerConfig `mapstructure:"content"`
	Collaborative BreakerConfig `mapstructure:"collaborative"`
	Catalog       BreakerConfig `mapstructure:"catalog"`
	Cache         BreakerConfig `mapstructure:"cache"`
	Events        BreakerConfig `mapstructure:"events"`
}

// --- Markets ---

// MarketConfig describes one sales market: its currency and the static
// conversion rate applied when the catalog has no market-specific override.
type MarketConfig struct {
	Currency string  `mapstructure:"currency"`
	Rate     float64 `mapstructure:"rate"`
}

type MarketsConfig struct {
	Default   string                  `mapstructure:"default"`
	Supported map[string]MarketConfig `mapstructure:"supported"`
}

// IsKnown reports whether marketID is a configured market.
func (m MarketsConfig) IsKnown(marketID string) bool {
	_, ok := m.Supported[marketID]
	return ok
}

// --- Warm-up ---

type WarmupConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Concurrency is the fixed worker pool size for preloading.
	Concurrency int `mapstructure:"concurrency"`
	// TopN is how many popular products to preload per market.
	TopN int `mapstructure:"top_n"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
