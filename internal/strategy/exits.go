package strategy

import (
	"context"
	"time"

	"optflow/internal/play"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// netPremium values the play at current quotes: one leg's mid for single
// contracts, the ratio-weighted sum across all legs for spreads. ok=false
// when any required leg quote is unavailable this cycle.
func netPremium(ctx context.Context, deps Deps, p *play.Play) (decimal.Decimal, bool) {
	net := decimal.Zero
	for _, leg := range p.AllLegs() {
		q, ok := deps.Market.GetOptionQuote(ctx, leg.OSI(p.Symbol))
		if !ok {
			return decimal.Decimal{}, false
		}
		mid := q.Mid()
		if mid.Sign() <= 0 {
			return decimal.Decimal{}, false
		}
		net = net.Add(mid.Mul(decimal.NewFromInt(int64(leg.Ratio))))
	}
	return net, true
}

// bullish reports whether the play profits from the underlying rising:
// long calls and short puts do, long puts and short calls do not.
func bullish(p *play.Play, longPremium bool) bool {
	isCall := p.Contract.Type == play.Call
	if longPremium {
		return isCall
	}
	return !isCall
}

// evaluateExit applies the play's exit condition. Take-profit and
// stop-loss are evaluated independently; when both fire in the same cycle
// stop-loss wins (capital preservation over profit-taking). Missing data
// leaves whichever side needs it unevaluated.
func evaluateExit(ctx context.Context, deps Deps, p *play.Play, longPremium bool, now time.Time) (play.CloseReason, bool) {
	var (
		current    decimal.Decimal
		haveQuote  bool
		underlying decimal.Decimal
		havePrice  bool
	)
	needQuote := targetNeedsQuote(p.Exit.StopLoss) || targetNeedsQuote(p.Exit.TakeProfit)
	if needQuote {
		current, haveQuote = netPremium(ctx, deps, p)
	}
	needPrice := targetNeedsPrice(p.Exit.StopLoss) || targetNeedsPrice(p.Exit.TakeProfit)
	if needPrice {
		underlying, havePrice = deps.Market.GetPrice(ctx, p.Symbol)
	}

	slHit := targetHit(p.Exit.StopLoss, false, p, longPremium, current, haveQuote, underlying, havePrice)
	tpHit := targetHit(p.Exit.TakeProfit, true, p, longPremium, current, haveQuote, underlying, havePrice)
	switch {
	case slHit:
		return play.ReasonStopLoss, true
	case tpHit:
		return play.ReasonTakeProfit, true
	}
	if p.Exit.MaxHoldHours > 0 && !p.OpenedAt.IsZero() {
		deadline := p.OpenedAt.Add(time.Duration(p.Exit.MaxHoldHours) * time.Hour)
		if now.After(deadline) {
			return play.ReasonTimeLimit, true
		}
	}
	return "", false
}

func targetNeedsQuote(t *play.ExitTarget) bool {
	return t != nil && (t.Kind == play.TargetPremium || t.Kind == play.TargetPercent)
}

func targetNeedsPrice(t *play.ExitTarget) bool {
	return t != nil && t.Kind == play.TargetPrice
}

func targetHit(t *play.ExitTarget, takeProfit bool, p *play.Play, longPremium bool,
	premium decimal.Decimal, haveQuote bool, underlying decimal.Decimal, havePrice bool) bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case play.TargetPremium:
		if !haveQuote {
			return false
		}
		// Short-premium plays track the cost to buy the position back.
		cost := premium.Abs()
		if longPremium {
			if takeProfit {
				return cost.GreaterThanOrEqual(t.Value)
			}
			return cost.LessThanOrEqual(t.Value)
		}
		if takeProfit {
			return cost.LessThanOrEqual(t.Value)
		}
		return cost.GreaterThanOrEqual(t.Value)
	case play.TargetPercent:
		if !haveQuote || p.EntryPremium.Sign() <= 0 {
			return false
		}
		cost := premium.Abs()
		var profitPct decimal.Decimal
		if longPremium {
			profitPct = cost.Sub(p.EntryPremium).Div(p.EntryPremium).Mul(hundred)
		} else {
			profitPct = p.EntryPremium.Sub(cost).Div(p.EntryPremium).Mul(hundred)
		}
		if takeProfit {
			return profitPct.GreaterThanOrEqual(t.Value)
		}
		// Stop-loss percent is declared as a positive max drawdown.
		return profitPct.LessThanOrEqual(t.Value.Neg())
	case play.TargetPrice:
		if !havePrice {
			return false
		}
		up := bullish(p, longPremium)
		if takeProfit == up {
			return underlying.GreaterThanOrEqual(t.Value)
		}
		return underlying.LessThanOrEqual(t.Value)
	}
	return false
}

// entryInBand reports whether the underlying trades within the play's
// entry band, target±buffer.
func entryInBand(price decimal.Decimal, entry play.EntryCondition) bool {
	return price.Sub(entry.TargetPrice).Abs().LessThanOrEqual(entry.Buffer)
}
