// Package binance adapts the go-binance SDK to the market.Provider
// contract. It serves spot prices and bars for crypto underlyings and
// reports ErrUnsupported for option data.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"optflow/internal/market"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

const maxKlineLimit = 1000

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}

type Provider struct {
	cfg    Config
	client *gobinance.Client
}

func New(cfg Config) *Provider {
	final := cfg.withDefaults()
	client := gobinance.NewClient("", "")
	if base := strings.TrimSpace(final.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Provider{cfg: final, client: client}
}

func (p *Provider) Name() string { return "binance" }

// exchangeSymbol flattens "BTC/USDT" into the slashless form binance wants.
func exchangeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))
}

func (p *Provider) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	sym := exchangeSymbol(symbol)
	if sym == "" {
		return decimal.Decimal{}, fmt.Errorf("binance: symbol is required")
	}
	prices, err := p.client.NewListPricesService().Symbol(sym).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("binance: price %s: %w", sym, err)
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, fmt.Errorf("binance: no price for %s", sym)
	}
	d, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("binance: parsing price %q: %w", prices[0].Price, err)
	}
	return d, nil
}

func (p *Provider) GetBars(ctx context.Context, symbol, interval string, lookbackDays int) ([]market.Bar, error) {
	sym := exchangeSymbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("binance: symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		interval = "1d"
	}
	limit := barsForLookback(interval, lookbackDays)
	kls, err := p.client.NewKlinesService().Symbol(sym).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s %s: %w", sym, interval, err)
	}
	bars := make([]market.Bar, 0, len(kls))
	for _, k := range kls {
		bar, err := toBar(k)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (p *Provider) GetOptionQuote(context.Context, string) (market.OptionQuote, error) {
	return market.OptionQuote{}, market.ErrUnsupported
}

func (p *Provider) GetExpirations(context.Context, string) ([]time.Time, error) {
	return nil, market.ErrUnsupported
}

func toBar(k *gobinance.Kline) (market.Bar, error) {
	open, err1 := strconv.ParseFloat(k.Open, 64)
	high, err2 := strconv.ParseFloat(k.High, 64)
	low, err3 := strconv.ParseFloat(k.Low, 64)
	closeP, err4 := strconv.ParseFloat(k.Close, 64)
	vol, err5 := strconv.ParseFloat(k.Volume, 64)
	for _, err := range []error{err1, err2, err3, err4, err5} {
		if err != nil {
			return market.Bar{}, fmt.Errorf("binance: parsing kline: %w", err)
		}
	}
	return market.Bar{
		OpenTime: time.UnixMilli(k.OpenTime).UTC(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closeP,
		Volume:   vol,
	}, nil
}

func barsForLookback(interval string, lookbackDays int) int {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	perDay := 1
	switch interval {
	case "1h":
		perDay = 24
	case "4h":
		perDay = 6
	case "15m":
		perDay = 96
	}
	limit := lookbackDays * perDay
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}
