package market

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Provider is one external market data source. Implementations return an
// error for anything they cannot answer right now; the gateway downgrades
// every provider error to "unavailable" and moves on to the next source.
type Provider interface {
	Name() string
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetOptionQuote(ctx context.Context, contractID string) (OptionQuote, error)
	GetBars(ctx context.Context, symbol, interval string, lookbackDays int) ([]Bar, error)
	GetExpirations(ctx context.Context, symbol string) ([]time.Time, error)
}

// SourceStats counts per-provider outcomes since process start.
type SourceStats struct {
	Requests    int64
	Misses      int64
	RateLimited int64
	Tripped     int64
}
