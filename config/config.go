// Package config loads and validates the service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/brickflow/brickflow/errors"
)

// Config represents the complete service configuration
type Config struct {
	Service ServiceConfig `yaml:"service"`
	NATS    NATSConfig    `yaml:"nats"`
	Gateway GatewayConfig `yaml:"gateway"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig defines service identity
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment,omitempty"` // "prod", "dev", "test"
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string      `yaml:"urls,omitempty"`
	MaxReconnects int           `yaml:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `yaml:"reconnect_wait,omitempty"`
	Username      string        `yaml:"username,omitempty"`
	Password      string        `yaml:"password,omitempty"`
	Token         string        `yaml:"token,omitempty"`
}

// GatewayConfig defines the HTTP gateway settings
type GatewayConfig struct {
	Addr         string        `yaml:"addr,omitempty"`
	MetricsAddr  string        `yaml:"metrics_addr,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
}

// LoggingConfig defines structured logging settings
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format,omitempty"` // "json" or "text"
}

// Default returns a configuration with development defaults
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "brickflow",
			Environment: "dev",
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Gateway: GatewayConfig{
			Addr:         ":8080",
			MetricsAddr:  ":9090",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file and merges it over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapFatal(errors.ErrMissingConfig, "config", "Load", path)
		}
		return nil, errors.WrapTransient(err, "config", "Load", "read config file")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "parse YAML")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for completeness and normalizes the
// service name
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return errors.WrapInvalid(fmt.Errorf("service.name is required"),
			"config", "Validate", "validation")
	}

	c.Service.Name = strings.ToLower(c.Service.Name)
	if !isValidSubjectPart(c.Service.Name) {
		return errors.WrapInvalid(
			fmt.Errorf("service.name %q is not valid for NATS subjects", c.Service.Name),
			"config", "Validate", "validation")
	}

	if len(c.NATS.URLs) == 0 {
		return errors.WrapInvalid(fmt.Errorf("nats.urls must not be empty"),
			"config", "Validate", "validation")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level),
			"config", "Validate", "validation")
	}

	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("logging.format %q is not one of json, text", c.Logging.Format),
			"config", "Validate", "validation")
	}

	return nil
}

// isValidSubjectPart checks a string is safe for use in NATS subjects:
// alphanumeric plus dots, dashes and underscores.
func isValidSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(fmt.Errorf("config cannot be nil"),
			"config", "Update", "validation")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := yaml.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}
