// Package broker defines the order gateway capability the orchestrator
// executes decisions through, plus the option order-action model.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrOrderNotFound = errors.New("broker: order not found")

// Side is the brokerage-level buy/sell direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Effect is the position effect of an order.
type Effect string

const (
	Open  Effect = "open"
	Close Effect = "close"
)

// Action is one of the four option order actions, modeling both
// long-premium and short-premium strategies.
type Action string

const (
	BuyToOpen   Action = "buy_to_open"
	SellToClose Action = "sell_to_close"
	SellToOpen  Action = "sell_to_open"
	BuyToClose  Action = "buy_to_close"
)

// Side maps the action to the brokerage buy/sell direction. Pure function,
// no hidden state.
func (a Action) Side() Side {
	switch a {
	case BuyToOpen, BuyToClose:
		return Buy
	default:
		return Sell
	}
}

// Effect maps the action to its position effect.
func (a Action) Effect() Effect {
	switch a {
	case BuyToOpen, SellToOpen:
		return Open
	default:
		return Close
	}
}

// Closing returns the action that unwinds a position opened with a.
func (a Action) Closing() Action {
	switch a {
	case BuyToOpen:
		return SellToClose
	case SellToOpen:
		return BuyToClose
	default:
		return a
	}
}

func (a Action) Valid() bool {
	switch a {
	case BuyToOpen, SellToClose, SellToOpen, BuyToClose:
		return true
	}
	return false
}

// OrderStatus is the normalized brokerage order state.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusFilled          OrderStatus = "filled"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
)

// OrderLeg is one contract leg of an order.
type OrderLeg struct {
	ContractID string
	Action     Action
	Quantity   int
}

// Order is a submit request. Single-leg orders carry exactly one leg;
// spreads carry one per leg, filled atomically or not at all.
type Order struct {
	Symbol     string
	Legs       []OrderLeg
	Type       string // "market" or "limit"
	LimitPrice decimal.Decimal
	Tag        string
}

// OrderState is a status query result.
type OrderState struct {
	OrderID      string
	Status       OrderStatus
	FilledQty    int
	AvgFillPrice decimal.Decimal
	UpdatedAt    time.Time
}

// Position is a brokerage position snapshot for one contract.
type Position struct {
	ContractID string
	Quantity   int
	AvgPrice   decimal.Decimal
}

// Gateway is the brokerage capability the core calls. Concrete transports
// (REST, websocket) live behind this boundary.
type Gateway interface {
	Submit(ctx context.Context, order Order) (string, error)
	Cancel(ctx context.Context, orderID string) error
	GetStatus(ctx context.Context, orderID string) (OrderState, error)
	GetPosition(ctx context.Context, contractID string) (Position, bool, error)
}
