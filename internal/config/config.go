package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the quote proxy.
type Config struct {
	// HTTP listen address, e.g. ":8080".
	ListenAddr string `mapstructure:"listen_addr"`

	// Redis connection; when empty or unreachable the proxy falls back to
	// the in-memory cache.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// Upstream endpoints (configurable for testing).
	QuoteBaseURL   string `mapstructure:"quote_base_url"`
	HolidayBaseURL string `mapstructure:"holiday_base_url"`

	// Pacing intervals per upstream source.
	QuoteMinInterval   time.Duration `mapstructure:"quote_min_interval"`
	HolidayMinInterval time.Duration `mapstructure:"holiday_min_interval"`

	// Logging.
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Load reads configuration from environment variables and an optional config
// file. Environment variables take precedence over config file values.
//
// Expected environment variables (all optional):
//   - LISTEN_ADDR (defaults to ":8080")
//   - REDIS_ADDR (empty means in-memory cache only)
//   - REDIS_PASSWORD
//   - REDIS_DB
//   - QUOTE_BASE_URL (defaults to production)
//   - HOLIDAY_BASE_URL (defaults to production)
//   - QUOTE_MIN_INTERVAL (defaults to 200ms)
//   - HOLIDAY_MIN_INTERVAL (defaults to 1s)
//   - LOG_LEVEL (defaults to "info")
//   - LOG_FORMAT ("json" or "console", defaults to "json")
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("quote_base_url", "https://push2.eastmoney.com")
	v.SetDefault("holiday_base_url", "https://timor.tech/api/holiday/info")
	v.SetDefault("quote_min_interval", "200ms")
	v.SetDefault("holiday_min_interval", "1s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.quotecache")

	// Config file is optional.
	_ = v.ReadInConfig()

	v.BindEnv("listen_addr", "LISTEN_ADDR")
	v.BindEnv("redis_addr", "REDIS_ADDR")
	v.BindEnv("redis_password", "REDIS_PASSWORD")
	v.BindEnv("redis_db", "REDIS_DB")
	v.BindEnv("quote_base_url", "QUOTE_BASE_URL")
	v.BindEnv("holiday_base_url", "HOLIDAY_BASE_URL")
	v.BindEnv("quote_min_interval", "QUOTE_MIN_INTERVAL")
	v.BindEnv("holiday_min_interval", "HOLIDAY_MIN_INTERVAL")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("log_format", "LOG_FORMAT")

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.QuoteMinInterval <= 0 {
		return nil, fmt.Errorf("QUOTE_MIN_INTERVAL must be positive, got %v", config.QuoteMinInterval)
	}
	if config.HolidayMinInterval <= 0 {
		return nil, fmt.Errorf("HOLIDAY_MIN_INTERVAL must be positive, got %v", config.HolidayMinInterval)
	}

	return config, nil
}
