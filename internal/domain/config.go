package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Cache      CacheConfig               `mapstructure:"cache"`
	Store      StoreConfig               `mapstructure:"store"`
	Algorithms map[string]AlgorithmConfig `mapstructure:"algorithms"`
	Logging    LoggingConfig             `mapstructure:"logging"`
	Notify     NotifyConfig              `mapstructure:"notify"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// CacheConfig represents the Redis evaluation cache configuration
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// StoreConfig represents the evaluation record store configuration
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// AlgorithmConfig represents one external risk-score service configuration
type AlgorithmConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"` // requests per second
	RetryCount int           `mapstructure:"retry_count"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// NotifyConfig represents the websocket event hub configuration
type NotifyConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
}
