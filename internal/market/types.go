// Package market provides the provider-agnostic market data gateway:
// ordered fallback across providers, per-provider rate limiting and a
// cycle-scoped cache.
package market

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnsupported is returned by providers for data kinds they do not serve;
// the gateway treats it like any other miss and falls through.
var ErrUnsupported = errors.New("market: data kind not supported by provider")

// Kind labels a cached data kind. Part of every cache key.
type Kind string

const (
	KindPrice       Kind = "price"
	KindOptionQuote Kind = "option_quote"
	KindBars        Kind = "bars"
	KindExpirations Kind = "expirations"
)

// OptionQuote carries an option contract's externally computed quote and
// greeks. Absent greeks are zero.
type OptionQuote struct {
	ContractID string
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	Last       decimal.Decimal
	Delta      decimal.Decimal
	Theta      decimal.Decimal
	IV         decimal.Decimal
	UpdatedAt  time.Time
}

// Mid returns the bid/ask midpoint, falling back to Last when one side is
// missing.
func (q OptionQuote) Mid() decimal.Decimal {
	if q.Bid.Sign() > 0 && q.Ask.Sign() > 0 {
		return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
	}
	return q.Last
}

// Bar is one OHLCV candle of the underlying. Floats, not decimals: bars
// feed indicator math, not order pricing.
type Bar struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Closes extracts the close series in chronological order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
