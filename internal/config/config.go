// Package config loads and validates the application configuration from a
// YAML file through viper.
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":9985"
	}
	if c.Account.Name == "" {
		c.Account.Name = "default"
	}
	if c.Account.DataDir == "" {
		c.Account.DataDir = "data"
	}
	if c.Orch.Mode == "" {
		c.Orch.Mode = "sequential"
	}
	if c.Orch.Workers <= 0 {
		c.Orch.Workers = 4
	}
	if c.Orch.PollIntervalSeconds <= 0 {
		c.Orch.PollIntervalSeconds = 30
	}
	if c.Orch.MaxRetries <= 0 {
		c.Orch.MaxRetries = 3
	}
	if c.Orch.OrderTimeoutSeconds <= 0 {
		c.Orch.OrderTimeoutSeconds = 300
	}
	if len(c.Providers.Order) == 0 {
		c.Providers.Order = []string{"tradier", "binance"}
	}
	if c.Providers.Limits.MaxRequests <= 0 {
		c.Providers.Limits.MaxRequests = 60
	}
	if c.Providers.Limits.WindowSeconds <= 0 {
		c.Providers.Limits.WindowSeconds = 60
	}
	if c.Providers.Limits.BreakerThreshold <= 0 {
		c.Providers.Limits.BreakerThreshold = 5
	}
	if c.Providers.Limits.BreakerCooldownSeconds <= 0 {
		c.Providers.Limits.BreakerCooldownSeconds = 120
	}
	if c.Providers.Tradier.TimeoutSeconds <= 0 {
		c.Providers.Tradier.TimeoutSeconds = 10
	}
	if c.Providers.Binance.TimeoutSeconds <= 0 {
		c.Providers.Binance.TimeoutSeconds = 10
	}
	if c.Broker.Kind == "" {
		c.Broker.Kind = "paper"
	}
	if c.History.Enabled && c.History.Path == "" {
		c.History.Path = "data/history.db"
	}
}

func validate(c *Config) error {
	switch c.Orch.Mode {
	case "sequential", "parallel":
	default:
		return fmt.Errorf("orchestrator.mode must be sequential or parallel, got %q", c.Orch.Mode)
	}
	known := map[string]bool{"tradier": true, "binance": true}
	for _, name := range c.Providers.Order {
		if !known[name] {
			return fmt.Errorf("providers.order contains unknown provider %q", name)
		}
	}
	for name, sc := range c.Strategy {
		if sc.Priority < 0 {
			return fmt.Errorf("strategies.%s.priority cannot be negative", name)
		}
	}
	if c.Broker.Kind != "paper" {
		return fmt.Errorf("broker.kind %q is not built in", c.Broker.Kind)
	}
	return nil
}
