package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/cvrisk-engine/internal/domain"
)

// Manager implements the ConfigManager interface using Viper.
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment and defaults.
func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/cvrisk-engine/")

	viper.SetEnvPrefix("CVRISK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and environment carry a full setup.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Risk algorithm service defaults
	viper.SetDefault("algorithms.framingham.base_url", "http://localhost:9101")
	viper.SetDefault("algorithms.framingham.timeout", "10s")
	viper.SetDefault("algorithms.framingham.rate_limit", 20)
	viper.SetDefault("algorithms.framingham.retry_count", 3)

	viper.SetDefault("algorithms.qrisk3.base_url", "http://localhost:9102")
	viper.SetDefault("algorithms.qrisk3.timeout", "10s")
	viper.SetDefault("algorithms.qrisk3.rate_limit", 20)
	viper.SetDefault("algorithms.qrisk3.retry_count", 3)

	// Cache defaults
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "1h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")

	// Store defaults
	viper.SetDefault("store.path", "./data/evaluations.db")

	// Notify defaults
	viper.SetDefault("notify.enabled", true)
	viper.SetDefault("notify.buffer_size", 64)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration.
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetCacheConfig returns cache configuration.
func (m *Manager) GetCacheConfig() *domain.CacheConfig {
	return &m.config.Cache
}

// GetAlgorithmConfig returns the configuration for one risk algorithm
// service, or nil when the algorithm is not configured.
func (m *Manager) GetAlgorithmConfig(id domain.AlgorithmID) *domain.AlgorithmConfig {
	cfg, ok := m.config.Algorithms[strings.ToLower(string(id))]
	if !ok {
		return nil
	}
	return &cfg
}

// Reload reloads the configuration.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the loaded configuration.
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	for _, id := range []domain.AlgorithmID{domain.AlgorithmFramingham, domain.AlgorithmQRISK3} {
		cfg := m.GetAlgorithmConfig(id)
		if cfg == nil || cfg.BaseURL == "" {
			return fmt.Errorf("%s base URL is required", strings.ToLower(string(id)))
		}
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when the cache is enabled")
	}
	if config.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}
