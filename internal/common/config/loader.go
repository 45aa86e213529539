// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DATABASE_REDIS_ADDRESS
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored when absent
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
	if cfg.Recommendation.Collaborative.APIKey == "" {
		if val := os.Getenv("COLLABORATIVE_API_KEY"); val != "" {
			cfg.Recommendation.Collaborative.APIKey = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 10000
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "products"
	}

	// Recommendation defaults
	if cfg.Recommendation.DefaultWeight == 0 {
		cfg.Recommendation.DefaultWeight = 0.5
	}
	if cfg.Recommendation.MaxN == 0 {
		cfg.Recommendation.MaxN = 100
	}
	if cfg.Recommendation.MaxExtra == 0 {
		cfg.Recommendation.MaxExtra = 50
	}
	if cfg.Recommendation.SourceTimeout == 0 {
		cfg.Recommendation.SourceTimeout = 2000
	}
	if cfg.Recommendation.ExclusionRecencyDays == 0 {
		cfg.Recommendation.ExclusionRecencyDays = 90
	}
	if cfg.Recommendation.DiversityQuota == 0 {
		cfg.Recommendation.DiversityQuota = 2
	}
	if cfg.Recommendation.Collaborative.Timeout == 0 {
		cfg.Recommendation.Collaborative.Timeout = 2000
	}

	// Cache defaults
	if cfg.Cache.ResultTTL == 0 {
		cfg.Cache.ResultTTL = 300
	}
	if cfg.Cache.ProductTTL == 0 {
		cfg.Cache.ProductTTL = 600
	}
	if cfg.Cache.LocalSize == 0 {
		cfg.Cache.LocalSize = 1024
	}
	if cfg.Cache.LocalTTL == 0 {
		cfg.Cache.LocalTTL = 60
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "rec"
	}
	if cfg.Cache.Timeout == 0 {
		cfg.Cache.Timeout = 500
	}

	// Breaker defaults
	applyBreakerDefaults(&cfg.Breakers.Content)
	applyBreakerDefaults(&cfg.Breakers.Collaborative)
	applyBreakerDefaults(&cfg.Breakers.Catalog)
	applyBreakerDefaults(&cfg.Breakers.Cache)
	applyBreakerDefaults(&cfg.Breakers.Events)

	// Markets default
	if cfg.Markets.Default == "" {
		cfg.Markets.Default = "US"
	}
	if cfg.Markets.Supported == nil {
		cfg.Markets.Supported = map[string]MarketConfig{
			cfg.Markets.Default: {Currency: "USD", Rate: 1.0},
		}
	}
	if _, ok := cfg.Markets.Supported[cfg.Markets.Default]; !ok {
		cfg.Markets.Supported[cfg.Markets.Default] = MarketConfig{Currency: "USD", Rate: 1.0}
	}

	// Warm-up defaults
	if cfg.Warmup.Concurrency == 0 {
		cfg.Warmup.Concurrency = 8
	}
	if cfg.Warmup.TopN == 0 {
		cfg.Warmup.TopN = 100
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func applyBreakerDefaults(b *BreakerConfig) {
	if b.FailureThreshold == 0 {
		b.FailureThreshold = 5
	}
	if b.Cooldown == 0 {
		b.Cooldown = 30000
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required")
	}

	if cfg.Recommendation.Collaborative.BaseURL == "" {
		return fmt.Errorf("recommendation.collaborative.base_url is required")
	}

	if w := cfg.Recommendation.DefaultWeight; w < 0 || w > 1 {
		return fmt.Errorf("recommendation.default_weight must be in [0,1]")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetSeconds converts seconds from config to time.Duration.
func GetSeconds(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
