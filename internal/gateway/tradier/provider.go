// Package tradier adapts the Tradier market data REST API to the
// market.Provider contract. Responses are picked apart with gjson instead
// of full DTO structs; only a handful of fields matter.
package tradier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"optflow/internal/market"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

type Config struct {
	BaseURL     string
	Token       string
	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = "https://api.tradier.com"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}

type Provider struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Provider {
	final := cfg.withDefaults()
	return &Provider{
		cfg:    final,
		client: &http.Client{Timeout: final.HTTPTimeout},
	}
}

func (p *Provider) Name() string { return "tradier" }

func (p *Provider) get(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	u := strings.TrimRight(p.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Accept", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("tradier: %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("tradier: reading %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("tradier: %s returned %d", path, resp.StatusCode)
	}
	return gjson.ParseBytes(body), nil
}

// quote fetches one row from /v1/markets/quotes. Tradier returns an object
// for a single symbol and an array for several; Get flattens both cases.
func (p *Provider) quote(ctx context.Context, symbol string, greeks bool) (gjson.Result, error) {
	q := url.Values{"symbols": {symbol}}
	if greeks {
		q.Set("greeks", "true")
	}
	root, err := p.get(ctx, "/v1/markets/quotes", q)
	if err != nil {
		return gjson.Result{}, err
	}
	row := root.Get("quotes.quote")
	if row.IsArray() {
		row = row.Get("0")
	}
	if !row.Exists() {
		return gjson.Result{}, fmt.Errorf("tradier: no quote for %s", symbol)
	}
	return row, nil
}

func (p *Provider) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	row, err := p.quote(ctx, strings.ToUpper(strings.TrimSpace(symbol)), false)
	if err != nil {
		return decimal.Decimal{}, err
	}
	last := row.Get("last")
	if !last.Exists() || last.Type == gjson.Null {
		return decimal.Decimal{}, fmt.Errorf("tradier: quote for %s has no last price", symbol)
	}
	return decimal.NewFromFloat(last.Float()), nil
}

func (p *Provider) GetOptionQuote(ctx context.Context, contractID string) (market.OptionQuote, error) {
	// Tradier quotes options by their OSI symbol with blanks collapsed.
	osi := strings.ReplaceAll(contractID, " ", "")
	row, err := p.quote(ctx, osi, true)
	if err != nil {
		return market.OptionQuote{}, err
	}
	q := market.OptionQuote{
		ContractID: contractID,
		Bid:        decimal.NewFromFloat(row.Get("bid").Float()),
		Ask:        decimal.NewFromFloat(row.Get("ask").Float()),
		Last:       decimal.NewFromFloat(row.Get("last").Float()),
		UpdatedAt:  time.Now().UTC(),
	}
	if g := row.Get("greeks"); g.Exists() {
		q.Delta = decimal.NewFromFloat(g.Get("delta").Float())
		q.Theta = decimal.NewFromFloat(g.Get("theta").Float())
		q.IV = decimal.NewFromFloat(g.Get("mid_iv").Float())
	}
	if q.Bid.Sign() <= 0 && q.Ask.Sign() <= 0 && q.Last.Sign() <= 0 {
		return market.OptionQuote{}, fmt.Errorf("tradier: empty option quote for %s", contractID)
	}
	return q, nil
}

func (p *Provider) GetBars(ctx context.Context, symbol, interval string, lookbackDays int) ([]market.Bar, error) {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	start := time.Now().AddDate(0, 0, -lookbackDays).Format("2006-01-02")
	q := url.Values{
		"symbol":   {strings.ToUpper(strings.TrimSpace(symbol))},
		"interval": {historyInterval(interval)},
		"start":    {start},
	}
	root, err := p.get(ctx, "/v1/markets/history", q)
	if err != nil {
		return nil, err
	}
	days := root.Get("history.day")
	if !days.Exists() {
		return nil, fmt.Errorf("tradier: no history for %s", symbol)
	}
	var bars []market.Bar
	days.ForEach(func(_, day gjson.Result) bool {
		ts, err := time.Parse("2006-01-02", day.Get("date").String())
		if err != nil {
			return true
		}
		bars = append(bars, market.Bar{
			OpenTime: ts,
			Open:     day.Get("open").Float(),
			High:     day.Get("high").Float(),
			Low:      day.Get("low").Float(),
			Close:    day.Get("close").Float(),
			Volume:   day.Get("volume").Float(),
		})
		return true
	})
	if len(bars) == 0 {
		return nil, fmt.Errorf("tradier: empty history for %s", symbol)
	}
	return bars, nil
}

func (p *Provider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	q := url.Values{"symbol": {strings.ToUpper(strings.TrimSpace(symbol))}}
	root, err := p.get(ctx, "/v1/markets/options/expirations", q)
	if err != nil {
		return nil, err
	}
	dates := root.Get("expirations.date")
	if !dates.Exists() {
		return nil, fmt.Errorf("tradier: no expirations for %s", symbol)
	}
	var out []time.Time
	dates.ForEach(func(_, d gjson.Result) bool {
		if ts, err := time.Parse("2006-01-02", d.String()); err == nil {
			out = append(out, ts)
		}
		return true
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("tradier: empty expirations for %s", symbol)
	}
	return out, nil
}

func historyInterval(interval string) string {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "", "1d", "daily":
		return "daily"
	case "1w", "weekly":
		return "weekly"
	default:
		return "daily"
	}
}
