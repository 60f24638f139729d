// Package play defines the central trade record of the system: a declarative
// description of one option trade candidate with its entry condition, exit
// rules and lifecycle state.
package play

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// OptionContract identifies a single option leg.
type OptionContract struct {
	Type       OptionType      `json:"type"`
	Strike     decimal.Decimal `json:"strike"`
	Expiration time.Time       `json:"expiration"`
	// Ratio is the signed contract count for this leg: positive long,
	// negative short. Single-leg plays use 1.
	Ratio int `json:"ratio"`
}

// OSI returns the contract identifier in OCC option-symbology form,
// e.g. "SPY   250919C00450000".
func (c OptionContract) OSI(underlying string) string {
	typ := "C"
	if c.Type == Put {
		typ = "P"
	}
	strike := c.Strike.Mul(decimal.NewFromInt(1000)).IntPart()
	return fmt.Sprintf("%-6s%s%s%08d", strings.ToUpper(underlying), c.Expiration.Format("060102"), typ, strike)
}

// Expired reports whether the contract's expiration date has passed.
func (c OptionContract) Expired(now time.Time) bool {
	return now.After(c.Expiration)
}

// EntryCondition declares when and how a play should be opened.
type EntryCondition struct {
	// TargetPrice is the underlying price that arms the entry.
	TargetPrice decimal.Decimal `json:"target_price"`
	// Buffer widens the target into a band; the entry fires when the
	// underlying trades within TargetPrice±Buffer.
	Buffer    decimal.Decimal `json:"buffer"`
	OrderType string          `json:"order_type"` // "market" or "limit"
	// LimitPrice is the option premium limit for limit entries; zero means
	// the strategy computes it from the current quote.
	LimitPrice decimal.Decimal `json:"limit_price,omitempty"`
}

// TargetKind selects how an exit target value is interpreted.
type TargetKind string

const (
	TargetPrice   TargetKind = "price"   // absolute underlying price
	TargetPercent TargetKind = "percent" // percent move of the premium
	TargetPremium TargetKind = "premium" // absolute option premium
)

// ExitTarget is one side of an exit rule (take-profit or stop-loss).
type ExitTarget struct {
	Kind  TargetKind      `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// ExitCondition declares when an open play should be closed.
type ExitCondition struct {
	TakeProfit *ExitTarget `json:"take_profit,omitempty"`
	StopLoss   *ExitTarget `json:"stop_loss,omitempty"`
	// MaxHold closes the play after this many hours in OPEN regardless of
	// price. Zero disables the time exit.
	MaxHoldHours int    `json:"max_hold_hours,omitempty"`
	OrderType    string `json:"order_type,omitempty"`
}

// CloseReason tags why a close decision was made.
type CloseReason string

const (
	ReasonTakeProfit  CloseReason = "take_profit"
	ReasonStopLoss    CloseReason = "stop_loss"
	ReasonTimeLimit   CloseReason = "time_limit"
	ReasonConditional CloseReason = "conditional"
)

// Play is the persisted trade record. Exactly one file on disk represents a
// play at any instant, located in the directory named after State.
type Play struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy"`
	// Playbook names the parameter-set template applied when the play was
	// created. Informational after creation.
	Playbook string `json:"playbook,omitempty"`

	Contract OptionContract `json:"contract"`
	// Legs holds the additional legs of a spread; empty for single-leg
	// plays. Contract is always the primary leg.
	Legs []OptionContract `json:"legs,omitempty"`

	Entry EntryCondition `json:"entry"`
	Exit  ExitCondition  `json:"exit"`

	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	OpenedAt  time.Time `json:"opened_at,omitempty"`

	EntryOrderID string `json:"entry_order_id,omitempty"`
	ExitOrderID  string `json:"exit_order_id,omitempty"`
	// EntryPremium is the per-contract fill premium of the entry order,
	// recorded when the play transitions to OPEN.
	EntryPremium decimal.Decimal `json:"entry_premium,omitempty"`
	CloseReason  CloseReason     `json:"close_reason,omitempty"`

	// OCO lists sibling play IDs cancelled when this play fills.
	OCO []string `json:"oco,omitempty"`
	// OTO lists dormant play IDs armed when this play fills.
	OTO []string `json:"oto,omitempty"`
	// Dormant plays are skipped by entry evaluation until an OTO trigger
	// clears the flag.
	Dormant bool `json:"dormant,omitempty"`

	// Retries counts consecutive failed order submissions; plays past the
	// configured maximum are flagged for manual review, never auto-closed.
	Retries int  `json:"retries,omitempty"`
	Flagged bool `json:"flagged,omitempty"`
}

// IsSpread reports whether the play carries more than one leg.
func (p *Play) IsSpread() bool { return len(p.Legs) > 0 }

// AllLegs returns the primary contract followed by the secondary legs.
func (p *Play) AllLegs() []OptionContract {
	legs := make([]OptionContract, 0, 1+len(p.Legs))
	legs = append(legs, p.Contract)
	legs = append(legs, p.Legs...)
	return legs
}

// Validate performs the structural checks required before a play is
// accepted or written to disk.
func (p *Play) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("play: missing id")
	}
	if strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("play %s: missing symbol", p.ID)
	}
	if strings.TrimSpace(p.Strategy) == "" {
		return fmt.Errorf("play %s: missing strategy", p.ID)
	}
	if !p.State.Valid() {
		return fmt.Errorf("play %s: invalid state %q", p.ID, p.State)
	}
	if p.Contract.Type != Call && p.Contract.Type != Put {
		return fmt.Errorf("play %s: invalid option type %q", p.ID, p.Contract.Type)
	}
	if p.Contract.Strike.Sign() <= 0 {
		return fmt.Errorf("play %s: strike must be positive", p.ID)
	}
	if p.Contract.Expiration.IsZero() {
		return fmt.Errorf("play %s: missing expiration", p.ID)
	}
	for i, leg := range p.Legs {
		if leg.Type != Call && leg.Type != Put {
			return fmt.Errorf("play %s: leg %d has invalid option type %q", p.ID, i, leg.Type)
		}
		if leg.Strike.Sign() <= 0 {
			return fmt.Errorf("play %s: leg %d strike must be positive", p.ID, i)
		}
		if leg.Ratio == 0 {
			return fmt.Errorf("play %s: leg %d has zero ratio", p.ID, i)
		}
	}
	if p.Entry.Buffer.Sign() < 0 {
		return fmt.Errorf("play %s: negative entry buffer", p.ID)
	}
	if p.Exit.TakeProfit == nil && p.Exit.StopLoss == nil && p.Exit.MaxHoldHours <= 0 {
		return fmt.Errorf("play %s: no exit condition declared", p.ID)
	}
	return nil
}
