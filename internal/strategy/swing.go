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
)

// swingParams is the strategies.premium_swing params block.
type swingParams struct {
	Momentum screenConfig `mapstructure:"momentum"`
}

// Swing is the long-premium single-leg strategy: buy a call or put when the
// underlying reaches the play's entry band, optionally confirmed by an RSI
// momentum screen, and exit on the play's take-profit/stop-loss/time rules.
type Swing struct {
	priority int
	params   swingParams
	books    *playbook.Registry
}

func NewSwing(s Settings) (Engine, error) {
	var params swingParams
	if err := mapstructure.Decode(s.Params, &params); err != nil {
		return nil, fmt.Errorf("premium_swing: bad params: %w", err)
	}
	params.Momentum = params.Momentum.withDefaults()
	return &Swing{priority: s.Priority, params: params, books: s.Books}, nil
}

func (s *Swing) Name() string                      { return "premium_swing" }
func (s *Swing) ConfigSection() string             { return "premium_swing" }
func (s *Swing) Priority() int                     { return s.priority }
func (s *Swing) DefaultEntryAction() broker.Action { return broker.BuyToOpen }
func (s *Swing) DefaultExitAction() broker.Action  { return broker.SellToClose }

func (s *Swing) Validate(p *play.Play) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.IsSpread() {
		return fmt.Errorf("premium_swing: play %s has %d extra legs, want single-leg", p.ID, len(p.Legs))
	}
	if p.Contract.Ratio != 1 {
		return fmt.Errorf("premium_swing: play %s must be long one contract, got ratio %d", p.ID, p.Contract.Ratio)
	}
	if p.Entry.TargetPrice.Sign() <= 0 {
		return fmt.Errorf("premium_swing: play %s has no entry target", p.ID)
	}
	return nil
}

func (s *Swing) EvaluateEntries(ctx context.Context, deps Deps, plays []*play.Play) []Decision {
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
			// The entry condition itself needs a price; unlike screens it
			// cannot permissively pass.
			logger.Debugf("premium_swing: no price for %s, holding play %s", p.Symbol, p.ID)
			continue
		}
		if !entryInBand(price, p.Entry) {
			continue
		}
		up := p.Contract.Type == play.Call
		if !momentumPass(ctx, deps, p, s.params.Momentum, up) {
			logger.Debugf("premium_swing: momentum screen rejected play %s", p.ID)
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
			if d.LimitPrice.Sign() <= 0 {
				if q, ok := deps.Market.GetOptionQuote(ctx, p.Contract.OSI(p.Symbol)); ok {
					d.LimitPrice = q.Mid()
				}
			}
		}
		out = append(out, d)
	}
	return out
}

func (s *Swing) EvaluateExits(ctx context.Context, deps Deps, plays []*play.Play) []Decision {
	var out []Decision
	now := time.Now().UTC()
	for _, p := range plays {
		reason, hit := evaluateExit(ctx, deps, p, true, now)
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
			if q, ok := deps.Market.GetOptionQuote(ctx, p.Contract.OSI(p.Symbol)); ok {
				d.LimitPrice = q.Mid()
			}
		}
		out = append(out, d)
	}
	return out
}

func exitOrderType(p *play.Play) string {
	if p.Exit.OrderType != "" {
		return p.Exit.OrderType
	}
	return "market"
}
