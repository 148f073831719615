// Package config loads importer settings from an optional config file
// (YAML, TOML or JSON, inferred from the extension) merged with
// environment variables. The ARBISCAN_API_KEY environment variable
// always wins over the file value.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Environment variable names honored on top of the config file.
const (
	EnvAPIKey = "ARBISCAN_API_KEY"
	EnvAPIURL = "ARBISCAN_API_URL"
)

// ConfigurationError is surfaced before any fetch begins and aborts the
// run with a non-zero exit code.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Config holds all importer settings.
type Config struct {
	// Explorer API
	APIURL       string
	APIKey       string
	PageSize     int
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	RateLimit    float64 // requests per second
	RateBurst    int

	// Pipeline
	Concurrency    int
	GasForIncoming bool

	// Prices
	PriceCachePath string
	RedisAddr      string

	// ClickHouse entry store (optional)
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// API server
	APIAddr      string
	APIServerKey string
	DevMode      bool
}

// Load reads configuration. When path is empty, config.{yml,yaml,toml,
// json} in the working directory is attempted and a missing file is not
// an error; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api_url", "https://api.arbiscan.io/api")
	v.SetDefault("api_key", "")
	v.SetDefault("page_size", 100)
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("max_retries", 5)
	v.SetDefault("retry_backoff", "2s")
	v.SetDefault("rate_limit", 5.0)
	v.SetDefault("rate_burst", 1)
	v.SetDefault("concurrency", 4)
	v.SetDefault("gas_for_incoming", false)
	v.SetDefault("price_cache_path", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("clickhouse_addr", "")
	v.SetDefault("clickhouse_database", "ledger")
	v.SetDefault("clickhouse_username", "default")
	v.SetDefault("clickhouse_password", "")
	v.SetDefault("api_addr", ":8090")
	v.SetDefault("api_server_key", "")
	v.SetDefault("dev_mode", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigurationError{Field: "config file", Reason: err.Error()}
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, &ConfigurationError{Field: "config file", Reason: err.Error()}
			}
		}
	}

	cfg := &Config{
		APIURL:             v.GetString("api_url"),
		APIKey:             v.GetString("api_key"),
		PageSize:           v.GetInt("page_size"),
		HTTPTimeout:        v.GetDuration("http_timeout"),
		MaxRetries:         v.GetInt("max_retries"),
		RetryBackoff:       v.GetDuration("retry_backoff"),
		RateLimit:          v.GetFloat64("rate_limit"),
		RateBurst:          v.GetInt("rate_burst"),
		Concurrency:        v.GetInt("concurrency"),
		GasForIncoming:     v.GetBool("gas_for_incoming"),
		PriceCachePath:     v.GetString("price_cache_path"),
		RedisAddr:          v.GetString("redis_addr"),
		ClickHouseAddr:     v.GetString("clickhouse_addr"),
		ClickHouseDatabase: v.GetString("clickhouse_database"),
		ClickHouseUsername: v.GetString("clickhouse_username"),
		ClickHousePassword: v.GetString("clickhouse_password"),
		APIAddr:            v.GetString("api_addr"),
		APIServerKey:       v.GetString("api_server_key"),
		DevMode:            v.GetBool("dev_mode"),
	}

	// Environment wins over the file for the API credentials.
	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.APIKey = key
	}
	if u := os.Getenv(EnvAPIURL); u != "" {
		cfg.APIURL = u
	}

	return cfg, nil
}

// Validate checks the configuration before any fetch begins.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return &ConfigurationError{Field: "api_url", Reason: "must not be empty"}
	}
	if u, err := url.Parse(c.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigurationError{Field: "api_url", Reason: fmt.Sprintf("%q is not an absolute URL", c.APIURL)}
	}
	if c.PageSize < 1 || c.PageSize > 10000 {
		return &ConfigurationError{Field: "page_size", Reason: "must be between 1 and 10000"}
	}
	if c.MaxRetries < 0 {
		return &ConfigurationError{Field: "max_retries", Reason: "must not be negative"}
	}
	if c.RateLimit <= 0 {
		return &ConfigurationError{Field: "rate_limit", Reason: "must be positive"}
	}
	if c.Concurrency < 1 {
		return &ConfigurationError{Field: "concurrency", Reason: "must be at least 1"}
	}
	return nil
}
