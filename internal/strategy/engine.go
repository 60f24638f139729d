// Package strategy defines the pluggable decision engines evaluated each
// cycle and the two built-in strategies. Engines decide; they never submit
// orders or touch play files.
package strategy

import (
	"context"

	"optflow/internal/broker"
	"optflow/internal/market"
	"optflow/internal/play"

	"github.com/shopspring/decimal"
)

// DecisionKind classifies a per-play evaluation outcome.
type DecisionKind int

const (
	NoAction DecisionKind = iota
	OpenNow
	CloseNow
)

func (k DecisionKind) String() string {
	switch k {
	case OpenNow:
		return "open"
	case CloseNow:
		return "close"
	default:
		return "none"
	}
}

// Decision is the ephemeral evaluation result for one play, consumed by the
// orchestrator within the same cycle.
type Decision struct {
	Play *play.Play
	Kind DecisionKind
	// OrderType and LimitPrice are the computed order parameters for
	// OpenNow/CloseNow. A zero LimitPrice with type "limit" means no usable
	// premium quote existed; the orchestrator falls back to market.
	OrderType  string
	LimitPrice decimal.Decimal
	// Reason tags CloseNow decisions.
	Reason play.CloseReason
	Note   string
}

// Deps is the evaluation handle passed into engines: market data and the
// (read-only from a strategy's perspective) order gateway.
type Deps struct {
	Market *market.Gateway
	Broker broker.Gateway
}

// Engine is the capability contract every strategy implements.
type Engine interface {
	Name() string
	// ConfigSection names the strategies.<section> config block the engine
	// was built from.
	ConfigSection() string
	Priority() int
	DefaultEntryAction() broker.Action
	DefaultExitAction() broker.Action
	// Validate rejects structurally unsound plays before they are accepted
	// for this strategy.
	Validate(p *play.Play) error
	// EvaluateEntries inspects NEW plays and returns at most one decision
	// per play. Missing market data must degrade to NoAction or a
	// permissive pass, never an error.
	EvaluateEntries(ctx context.Context, deps Deps, plays []*play.Play) []Decision
	// EvaluateExits inspects OPEN plays. Stop-loss wins when both exit
	// sides would fire in the same cycle.
	EvaluateExits(ctx context.Context, deps Deps, plays []*play.Play) []Decision
}
