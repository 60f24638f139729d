package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"optflow/internal/market"
	"optflow/internal/play"
	"optflow/internal/playbook"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider serves fixed prices and quotes to the market gateway.
type stubProvider struct {
	prices map[string]string
	quotes map[string]market.OptionQuote
	bars   []market.Bar
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) GetPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	raw, ok := s.prices[symbol]
	if !ok {
		return decimal.Decimal{}, errors.New("no price")
	}
	return decimal.RequireFromString(raw), nil
}

func (s *stubProvider) GetOptionQuote(_ context.Context, contractID string) (market.OptionQuote, error) {
	q, ok := s.quotes[contractID]
	if !ok {
		return market.OptionQuote{}, errors.New("no quote")
	}
	return q, nil
}

func (s *stubProvider) GetBars(_ context.Context, _, _ string, _ int) ([]market.Bar, error) {
	if s.bars == nil {
		return nil, market.ErrUnsupported
	}
	return s.bars, nil
}

func (s *stubProvider) GetExpirations(_ context.Context, _ string) ([]time.Time, error) {
	return nil, market.ErrUnsupported
}

func testDeps(t *testing.T, p *stubProvider) Deps {
	t.Helper()
	g := market.NewGateway()
	g.Register(p, market.ProviderConfig{})
	return Deps{Market: g}
}

func emptyBooks(t *testing.T) *playbook.Registry {
	t.Helper()
	books, err := playbook.Load("")
	require.NoError(t, err)
	return books
}

func quote(bid, ask string) market.OptionQuote {
	return market.OptionQuote{
		Bid: decimal.RequireFromString(bid),
		Ask: decimal.RequireFromString(ask),
	}
}

func swingPlay() *play.Play {
	return &play.Play{
		ID:       "p-1",
		Symbol:   "SPY",
		Strategy: "premium_swing",
		State:    play.StateNew,
		Contract: play.OptionContract{
			Type:       play.Call,
			Strike:     decimal.RequireFromString("450"),
			Expiration: time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC),
			Ratio:      1,
		},
		Entry: play.EntryCondition{
			TargetPrice: decimal.RequireFromString("100.00"),
			Buffer:      decimal.RequireFromString("0.50"),
			OrderType:   "limit",
		},
		Exit: play.ExitCondition{
			TakeProfit: &play.ExitTarget{Kind: play.TargetPremium, Value: decimal.RequireFromString("5.00")},
		},
	}
}

func newSwing(t *testing.T, params map[string]any) Engine {
	t.Helper()
	eng, err := NewSwing(Settings{Params: params, Books: emptyBooks(t)})
	require.NoError(t, err)
	return eng
}

func TestSwingEntryWithinBand(t *testing.T) {
	p := swingPlay()
	osi := p.Contract.OSI(p.Symbol)
	deps := testDeps(t, &stubProvider{
		prices: map[string]string{"SPY": "100.30"},
		quotes: map[string]market.OptionQuote{osi: quote("2.90", "3.10")},
	})
	eng := newSwing(t, nil)

	decisions := eng.EvaluateEntries(context.Background(), deps, []*play.Play{p})
	require.Len(t, decisions, 1)
	assert.Equal(t, OpenNow, decisions[0].Kind)
	assert.Equal(t, "limit", decisions[0].OrderType)
	assert.True(t, decisions[0].LimitPrice.Equal(decimal.RequireFromString("3.00")),
		"limit price falls back to the quoted mid")
}

func TestSwingEntryOutsideBand(t *testing.T) {
	deps := testDeps(t, &stubProvider{prices: map[string]string{"SPY": "100.51"}})
	eng := newSwing(t, nil)

	decisions := eng.EvaluateEntries(context.Background(), deps, []*play.Play{swingPlay()})
	assert.Empty(t, decisions, "100.51 sits just outside 100.00±0.50")
}

func TestSwingEntryIsRepeatable(t *testing.T) {
	p := swingPlay()
	deps := testDeps(t, &stubProvider{prices: map[string]string{"SPY": "100.30"}})
	eng := newSwing(t, nil)

	ctx := context.Background()
	first := eng.EvaluateEntries(ctx, deps, []*play.Play{p})
	second := eng.EvaluateEntries(ctx, deps, []*play.Play{p})
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, play.StateNew, p.State, "evaluation never touches play state")
}

func TestSwingEntryHoldsWithoutPrice(t *testing.T) {
	deps := testDeps(t, &stubProvider{})
	eng := newSwing(t, nil)

	decisions := eng.EvaluateEntries(context.Background(), deps, []*play.Play{swingPlay()})
	assert.Empty(t, decisions, "entry needs a price, unlike screens it cannot pass permissively")
}

func TestSwingEntrySkipsDormantAndFlagged(t *testing.T) {
	deps := testDeps(t, &stubProvider{prices: map[string]string{"SPY": "100.00"}})
	eng := newSwing(t, nil)

	dormant := swingPlay()
	dormant.Dormant = true
	flagged := swingPlay()
	flagged.ID = "p-2"
	flagged.Flagged = true

	decisions := eng.EvaluateEntries(context.Background(), deps, []*play.Play{dormant, flagged})
	assert.Empty(t, decisions)
}

func TestSwingMomentumScreenPassesOnMissingBars(t *testing.T) {
	deps := testDeps(t, &stubProvider{prices: map[string]string{"SPY": "100.00"}})
	eng := newSwing(t, map[string]any{
		"momentum": map[string]any{"enabled": true},
	})

	decisions := eng.EvaluateEntries(context.Background(), deps, []*play.Play{swingPlay()})
	assert.Len(t, decisions, 1, "missing bar data must not block the entry")
}

func openSwingPlay() *play.Play {
	p := swingPlay()
	p.State = play.StateOpen
	p.OpenedAt = time.Now().UTC().Add(-2 * time.Hour)
	p.EntryPremium = decimal.RequireFromString("4.00")
	return p
}

func TestSwingTakeProfitPremium(t *testing.T) {
	p := openSwingPlay()
	osi := p.Contract.OSI(p.Symbol)
	deps := testDeps(t, &stubProvider{
		quotes: map[string]market.OptionQuote{osi: quote("4.95", "5.05")},
	})
	eng := newSwing(t, nil)

	decisions := eng.EvaluateExits(context.Background(), deps, []*play.Play{p})
	require.Len(t, decisions, 1)
	assert.Equal(t, CloseNow, decisions[0].Kind)
	assert.Equal(t, play.ReasonTakeProfit, decisions[0].Reason)
	assert.Equal(t, "market", decisions[0].OrderType, "no exit order type declared")
}

func TestStopLossWinsWhenBothFire(t *testing.T) {
	p := openSwingPlay()
	// Premium take-profit is met, and simultaneously the underlying has
	// fallen through the price stop.
	p.Exit.StopLoss = &play.ExitTarget{Kind: play.TargetPrice, Value: decimal.RequireFromString("99.00")}
	osi := p.Contract.OSI(p.Symbol)
	deps := testDeps(t, &stubProvider{
		prices: map[string]string{"SPY": "98.00"},
		quotes: map[string]market.OptionQuote{osi: quote("5.10", "5.30")},
	})
	eng := newSwing(t, nil)

	decisions := eng.EvaluateExits(context.Background(), deps, []*play.Play{p})
	require.Len(t, decisions, 1)
	assert.Equal(t, play.ReasonStopLoss, decisions[0].Reason)
}

func TestSwingStopLossPercent(t *testing.T) {
	p := openSwingPlay()
	p.Exit.TakeProfit = nil
	p.Exit.StopLoss = &play.ExitTarget{Kind: play.TargetPercent, Value: decimal.RequireFromString("25")}
	osi := p.Contract.OSI(p.Symbol)
	deps := testDeps(t, &stubProvider{
		quotes: map[string]market.OptionQuote{osi: quote("2.90", "3.00")},
	})
	eng := newSwing(t, nil)

	// Entry 4.00, now 2.95: a 26% drawdown breaches the 25% stop.
	decisions := eng.EvaluateExits(context.Background(), deps, []*play.Play{p})
	require.Len(t, decisions, 1)
	assert.Equal(t, play.ReasonStopLoss, decisions[0].Reason)
}

func TestSwingTimeLimitExit(t *testing.T) {
	p := openSwingPlay()
	p.Exit.TakeProfit = nil
	p.Exit.MaxHoldHours = 24
	p.OpenedAt = time.Now().UTC().Add(-25 * time.Hour)
	deps := testDeps(t, &stubProvider{})
	eng := newSwing(t, nil)

	decisions := eng.EvaluateExits(context.Background(), deps, []*play.Play{p})
	require.Len(t, decisions, 1)
	assert.Equal(t, play.ReasonTimeLimit, decisions[0].Reason)
}

func TestSwingExitHoldsWithoutQuote(t *testing.T) {
	p := openSwingPlay()
	deps := testDeps(t, &stubProvider{})
	eng := newSwing(t, nil)

	decisions := eng.EvaluateExits(context.Background(), deps, []*play.Play{p})
	assert.Empty(t, decisions, "a premium target cannot fire without a quote")
}

func TestSwingValidate(t *testing.T) {
	eng := newSwing(t, nil)

	good := swingPlay()
	assert.NoError(t, eng.Validate(good))

	spread := swingPlay()
	spread.Legs = []play.OptionContract{{
		Type: play.Call, Strike: decimal.RequireFromString("455"),
		Expiration: spread.Contract.Expiration, Ratio: -1,
	}}
	assert.Error(t, eng.Validate(spread))

	short := swingPlay()
	short.Contract.Ratio = -1
	assert.Error(t, eng.Validate(short))
}

func spreadPlay() *play.Play {
	exp := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	return &play.Play{
		ID:       "s-1",
		Symbol:   "SPY",
		Strategy: "vertical_spread",
		State:    play.StateNew,
		Contract: play.OptionContract{
			Type: play.Call, Strike: decimal.RequireFromString("450"),
			Expiration: exp, Ratio: 1,
		},
		Legs: []play.OptionContract{{
			Type: play.Call, Strike: decimal.RequireFromString("455"),
			Expiration: exp, Ratio: -1,
		}},
		Entry: play.EntryCondition{
			TargetPrice: decimal.RequireFromString("450.00"),
			Buffer:      decimal.RequireFromString("1.00"),
			OrderType:   "limit",
		},
		Exit: play.ExitCondition{
			TakeProfit: &play.ExitTarget{Kind: play.TargetPremium, Value: decimal.RequireFromString("4.00")},
		},
	}
}

func newSpread(t *testing.T, params map[string]any) Engine {
	t.Helper()
	eng, err := NewSpread(Settings{Params: params, Books: emptyBooks(t)})
	require.NoError(t, err)
	return eng
}

func TestSpreadValidate(t *testing.T) {
	eng := newSpread(t, nil)

	assert.NoError(t, eng.Validate(spreadPlay()))

	single := spreadPlay()
	single.Legs = nil
	assert.Error(t, eng.Validate(single), "a vertical needs two legs")

	mixed := spreadPlay()
	mixed.Legs[0].Type = play.Put
	assert.Error(t, eng.Validate(mixed))

	sameStrike := spreadPlay()
	sameStrike.Legs[0].Strike = sameStrike.Contract.Strike
	assert.Error(t, eng.Validate(sameStrike))

	sameSide := spreadPlay()
	sameSide.Legs[0].Ratio = 1
	assert.Error(t, eng.Validate(sameSide))
}

func TestSpreadEntryUsesNetPremium(t *testing.T) {
	p := spreadPlay()
	longOSI := p.Contract.OSI(p.Symbol)
	shortOSI := p.Legs[0].OSI(p.Symbol)
	deps := testDeps(t, &stubProvider{
		prices: map[string]string{"SPY": "450.20"},
		quotes: map[string]market.OptionQuote{
			longOSI:  quote("3.00", "3.20"), // mid 3.10
			shortOSI: quote("1.00", "1.20"), // mid 1.10
		},
	})
	eng := newSpread(t, nil)

	decisions := eng.EvaluateEntries(context.Background(), deps, []*play.Play{p})
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].LimitPrice.Equal(decimal.RequireFromString("2.00")),
		"limit is the net debit across both legs")
}

func TestSpreadPremiumFloorScreens(t *testing.T) {
	p := spreadPlay()
	longOSI := p.Contract.OSI(p.Symbol)
	shortOSI := p.Legs[0].OSI(p.Symbol)
	deps := testDeps(t, &stubProvider{
		prices: map[string]string{"SPY": "450.20"},
		quotes: map[string]market.OptionQuote{
			longOSI:  quote("1.10", "1.30"),
			shortOSI: quote("1.00", "1.20"),
		},
	})
	eng := newSpread(t, map[string]any{"min_net_premium": "0.50"})

	decisions := eng.EvaluateEntries(context.Background(), deps, []*play.Play{p})
	assert.Empty(t, decisions, "net 0.10 is below the 0.50 floor")
}

func TestSpreadPremiumFloorPassesWithoutQuotes(t *testing.T) {
	deps := testDeps(t, &stubProvider{prices: map[string]string{"SPY": "450.20"}})
	eng := newSpread(t, map[string]any{"min_net_premium": "0.50"})

	decisions := eng.EvaluateEntries(context.Background(), deps, []*play.Play{spreadPlay()})
	assert.Len(t, decisions, 1, "the floor is a screen and passes on a data gap")
}

func TestBuildUnknownStrategy(t *testing.T) {
	_, err := Build("martingale", Settings{})
	assert.Error(t, err)
	assert.Equal(t, []string{"premium_swing", "vertical_spread"}, Known())
}
