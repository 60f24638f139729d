package config

import "time"

// Config is the full configuration snapshot. The core treats it as
// immutable once loaded; nothing reloads mid-cycle.
type Config struct {
	App       AppConfig                 `mapstructure:"app"`
	Account   AccountConfig             `mapstructure:"account"`
	Orch      OrchConfig                `mapstructure:"orchestrator"`
	Strategy  map[string]StrategyConfig `mapstructure:"strategies"`
	Providers ProvidersConfig           `mapstructure:"providers"`
	Broker    BrokerConfig              `mapstructure:"broker"`
	Playbooks PlaybooksConfig           `mapstructure:"playbooks"`
	History   HistoryConfig             `mapstructure:"history"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
	HTTPAddr string `mapstructure:"http_addr"`
}

// AccountConfig scopes play storage to one brokerage account.
type AccountConfig struct {
	Name    string `mapstructure:"name"`
	DataDir string `mapstructure:"data_dir"`
}

type OrchConfig struct {
	// Mode is "sequential" (default) or "parallel".
	Mode    string `mapstructure:"mode"`
	Workers int    `mapstructure:"workers"`
	// PollIntervalSeconds drives the cycle loop.
	PollIntervalSeconds int  `mapstructure:"poll_interval_seconds"`
	DryRun              bool `mapstructure:"dry_run"`
	// MaxRetries bounds consecutive order-submission failures before a
	// play is flagged for manual review.
	MaxRetries int `mapstructure:"max_retries"`
	// OrderTimeoutSeconds bounds how long a pending entry/exit order may
	// sit unfilled before it is cancelled and the play reverts.
	OrderTimeoutSeconds int `mapstructure:"order_timeout_seconds"`
}

func (o OrchConfig) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalSeconds) * time.Second
}

func (o OrchConfig) OrderTimeout() time.Duration {
	return time.Duration(o.OrderTimeoutSeconds) * time.Second
}

func (o OrchConfig) Parallel() bool { return o.Mode == "parallel" }

type StrategyConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Priority int            `mapstructure:"priority"`
	Params   map[string]any `mapstructure:"params"`
}

type ProvidersConfig struct {
	// Order is the fallback order; names must match registered adapters.
	Order   []string       `mapstructure:"order"`
	Tradier TradierConfig  `mapstructure:"tradier"`
	Binance BinanceConfig  `mapstructure:"binance"`
	Limits  ProviderLimits `mapstructure:"limits"`
}

type TradierConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type BinanceConfig struct {
	RESTBaseURL    string `mapstructure:"rest_base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ProviderLimits applies to every provider adapter.
type ProviderLimits struct {
	MaxRequests            int `mapstructure:"max_requests"`
	WindowSeconds          int `mapstructure:"window_seconds"`
	BreakerThreshold       int `mapstructure:"breaker_threshold"`
	BreakerCooldownSeconds int `mapstructure:"breaker_cooldown_seconds"`
}

func (l ProviderLimits) Window() time.Duration {
	return time.Duration(l.WindowSeconds) * time.Second
}

func (l ProviderLimits) BreakerCooldown() time.Duration {
	return time.Duration(l.BreakerCooldownSeconds) * time.Second
}

type BrokerConfig struct {
	// Kind selects the gateway implementation; "paper" is the only
	// built-in. Live adapters register under their own names.
	Kind string `mapstructure:"kind"`
	// PaperFillAfterPolls delays paper fills by N status polls.
	PaperFillAfterPolls int `mapstructure:"paper_fill_after_polls"`
}

type PlaybooksConfig struct {
	Dir string `mapstructure:"dir"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}
