package strategy

import (
	"context"

	"optflow/internal/logger"
	"optflow/internal/market"
	"optflow/internal/play"

	"github.com/markcheno/go-talib"
)

// screenConfig tunes the optional momentum confirmation screen.
type screenConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Interval     string  `mapstructure:"interval"`
	LookbackDays int     `mapstructure:"lookback_days"`
	RSIPeriod    int     `mapstructure:"rsi_period"`
	RSIBullish   float64 `mapstructure:"rsi_bullish"`
	RSIBearish   float64 `mapstructure:"rsi_bearish"`
}

func (c screenConfig) withDefaults() screenConfig {
	if c.Interval == "" {
		c.Interval = "1d"
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = 60
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.RSIBullish <= 0 {
		c.RSIBullish = 50
	}
	if c.RSIBearish <= 0 {
		c.RSIBearish = 50
	}
	return c
}

// momentumPass gates an entry on RSI confirmation in the trade's direction.
// Unavailable or insufficient bar data passes the screen: a transient data
// gap must never silently block legitimate trading.
func momentumPass(ctx context.Context, deps Deps, p *play.Play, cfg screenConfig, up bool) bool {
	if !cfg.Enabled {
		return true
	}
	bars, ok := deps.Market.GetBars(ctx, p.Symbol, cfg.Interval, cfg.LookbackDays)
	if !ok || len(bars) <= cfg.RSIPeriod {
		logger.Debugf("strategy: momentum screen for %s has no data, passing", p.Symbol)
		return true
	}
	rsi := talib.Rsi(market.Closes(bars), cfg.RSIPeriod)
	last := rsi[len(rsi)-1]
	if last == 0 {
		return true
	}
	if up {
		return last >= cfg.RSIBullish
	}
	return last <= cfg.RSIBearish
}
