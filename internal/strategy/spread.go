package strategy

import (
	"context"
	"fmt"
	"time"

	"optflow/internal/broker"
	"optflow/internal/logger"
	"optflow/internal/play"
	"optflow/internal/playbook"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
)

// spreadParams is the strategies.vertical_spread params block.
type spreadParams struct {
	// Credit selects short-premium semantics: sell the spread to open and
	// buy it back to close.
	Credit bool `mapstructure:"credit"`
	// MinNetPremium rejects entries whose current net premium (absolute)
	// is below this, e.g. a credit too small to bother collecting. String
	// so YAML keeps exact decimals.
	MinNetPremium string       `mapstructure:"min_net_premium"`
	Momentum      screenConfig `mapstructure:"momentum"`
}

// Spread is the two-leg vertical spread strategy. All exits evaluate the
// net value across legs, never a single leg.
type Spread struct {
	priority   int
	credit     bool
	minPremium decimal.Decimal
	momentum   screenConfig
	books      *playbook.Registry
}

func NewSpread(s Settings) (Engine, error) {
	var params spreadParams
	if err := mapstructure.Decode(s.Params, &params); err != nil {
		return nil, fmt.Errorf("vertical_spread: bad params: %w", err)
	}
	eng := &Spread{
		priority: s.Priority,
		credit:   params.Credit,
		momentum: params.Momentum.withDefaults(),
		books:    s.Books,
	}
	if params.MinNetPremium != "" {
		min, err := decimal.NewFromString(params.MinNetPremium)
		if err != nil {
			return nil, fmt.Errorf("vertical_spread: bad min_net_premium %q: %w", params.MinNetPremium, err)
		}
		eng.minPremium = min
	}
	return eng, nil
}

func (s *Spread) Name() string          { return "vertical_spread" }
func (s *Spread) ConfigSection() string { return "vertical_spread" }
func (s *Spread) Priority() int         { return s.priority }

func (s *Spread) DefaultEntryAction() broker.Action {
	if s.credit {
		return broker.SellToOpen
	}
	return broker.BuyToOpen
}

func (s *Spread) DefaultExitAction() broker.Action {
	return s.DefaultEntryAction().Closing()
}

func (s *Spread) Validate(p *play.Play) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if len(p.Legs) != 1 {
		return fmt.Errorf("vertical_spread: play %s has %d legs, want exactly 2", p.ID, 1+len(p.Legs))
	}
	long, short := p.Contract, p.Legs[0]
	if long.Type != short.Type {
		return fmt.Errorf("vertical_spread: play %s mixes option types", p.ID)
	}
	if !long.Expiration.Equal(short.Expiration) {
		return fmt.Errorf("vertical_spread: play %s legs expire on different dates", p.ID)
	}
	if long.Strike.Equal(short.Strike) {
		return fmt.Errorf("vertical_spread: play %s legs share a strike", p.ID)
	}
	if long.Ratio*short.Ratio >= 0 {
		return fmt.Errorf("vertical_spread: play %s legs must have opposite ratios", p.ID)
	}
	return nil
}

func (s *Spread) EvaluateEntries(ctx context.Context, deps Deps, plays []*play.Play) []Decision {
	var out []Decision
	for _, p := range plays {
		if p.Dormant || p.Flagged {
			continue
		}
		if tpl, ok := s.books.Get(p.Playbook); ok {
			tpl.Apply(p)
		}
		price, ok := deps.Market.GetPrice(ctx, p.Symbol)
		if !ok {
			logger.Debugf("vertical_spread: no price for %s, holding play %s", p.Symbol, p.ID)
			continue
		}
		if !entryInBand(price, p.Entry) {
			continue
		}
		up := bullish(p, !s.credit)
		if !momentumPass(ctx, deps, p, s.momentum, up) {
			logger.Debugf("vertical_spread: momentum screen rejected play %s", p.ID)
			continue
		}
		net, haveNet := netPremium(ctx, deps, p)
		// The premium floor is a screen: an unavailable net premium passes
		// rather than blocking the trade on a data gap.
		if haveNet && s.minPremium.Sign() > 0 && net.Abs().LessThan(s.minPremium) {
			logger.Debugf("vertical_spread: play %s net premium %s below floor %s", p.ID, net, s.minPremium)
			continue
		}
		d := Decision{
			Play:      p,
			Kind:      OpenNow,
			OrderType: p.Entry.OrderType,
			Note:      fmt.Sprintf("underlying %s within %s±%s", price, p.Entry.TargetPrice, p.Entry.Buffer),
		}
		if d.OrderType == "limit" {
			d.LimitPrice = p.Entry.LimitPrice
			if d.LimitPrice.Sign() <= 0 && haveNet {
				d.LimitPrice = net.Abs()
			}
		}
		out = append(out, d)
	}
	return out
}

func (s *Spread) EvaluateExits(ctx context.Context, deps Deps, plays []*play.Play) []Decision {
	var out []Decision
	now := time.Now().UTC()
	for _, p := range plays {
		reason, hit := evaluateExit(ctx, deps, p, !s.credit, now)
		if !hit {
			continue
		}
		d := Decision{
			Play:      p,
			Kind:      CloseNow,
			Reason:    reason,
			OrderType: exitOrderType(p),
		}
		if d.OrderType == "limit" {
			if net, ok := netPremium(ctx, deps, p); ok {
				d.LimitPrice = net.Abs()
			}
		}
		out = append(out, d)
	}
	return out
}
