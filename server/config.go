package server

import (
	"fmt"
	"os"
	"time"

	"github.com/cyp0633/librecur/server/recurrence"
	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration of a Provider.
type Config struct {
	// LocalTimezone is the IANA zone in which day and minute fields of
	// timed instances are computed.
	LocalTimezone string `yaml:"local_timezone"`

	// DefaultWindow is how far past a query's start the first expansion of
	// a calendar reaches. Zero expands exactly the queried range.
	DefaultWindow time.Duration `yaml:"default_window"`

	// Sync adapter accounts allowed to write, keyed by username.
	Adapters []AdapterConfig `yaml:"adapters"`

	Engine recurrence.EngineConfig `yaml:"engine"`
}

// AdapterConfig registers one sync adapter login
type AdapterConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Account  string `yaml:"account"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		LocalTimezone: "UTC",
		DefaultWindow: 0,
		Engine:        recurrence.DefaultEngineConfig,
	}
}

// LoadConfig reads a YAML file over DefaultConfig and normalizes it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig and normalizes it.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Normalize fills unset values with defaults and rejects values that cannot
// be used.
func (c *Config) Normalize() error {
	if c.LocalTimezone == "" {
		c.LocalTimezone = "UTC"
	}
	if _, err := time.LoadLocation(c.LocalTimezone); err != nil {
		return fmt.Errorf("local_timezone: %w", err)
	}
	if c.DefaultWindow < 0 {
		return fmt.Errorf("default_window must not be negative")
	}
	if c.Engine.MaxOccurrencesPerEvent < 0 {
		return fmt.Errorf("engine.max_occurrences_per_event must not be negative")
	}

	cache := &c.Engine.CacheConfig
	if cache.TTL <= 0 {
		cache.TTL = recurrence.DefaultCacheConfig.TTL
	}
	if cache.MaxEntries <= 0 {
		cache.MaxEntries = recurrence.DefaultCacheConfig.MaxEntries
	}
	if cache.CleanupInterval <= 0 {
		cache.CleanupInterval = recurrence.DefaultCacheConfig.CleanupInterval
	}

	for i, a := range c.Adapters {
		if a.Username == "" {
			return fmt.Errorf("adapters[%d]: username is required", i)
		}
	}
	return nil
}
