// Package paper implements broker.Gateway against in-memory state: orders
// fill after a configurable number of status polls at the submitted limit
// price (or a caller-supplied mark). It backs local runs without market
// risk and the orchestration tests.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"optflow/internal/broker"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type paperOrder struct {
	order broker.Order
	state broker.OrderState
	polls int
}

// Broker is a self-filling paper brokerage.
type Broker struct {
	mu sync.Mutex
	// FillAfterPolls delays fills until the Nth status query, letting the
	// reconcile path see a pending order for a cycle or two. Zero fills on
	// the first poll.
	FillAfterPolls int
	// MarkPrice, when set, prices market-order fills; limit orders always
	// fill at their limit.
	MarkPrice func(contractID string) decimal.Decimal

	orders    map[string]*paperOrder
	positions map[string]broker.Position
}

func New() *Broker {
	return &Broker{
		orders:    make(map[string]*paperOrder),
		positions: make(map[string]broker.Position),
	}
}

func (b *Broker) Submit(_ context.Context, order broker.Order) (string, error) {
	if len(order.Legs) == 0 {
		return "", fmt.Errorf("paper: order has no legs")
	}
	for _, leg := range order.Legs {
		if !leg.Action.Valid() {
			return "", fmt.Errorf("paper: invalid action %q", leg.Action)
		}
		if leg.Quantity <= 0 {
			return "", fmt.Errorf("paper: leg quantity must be positive")
		}
	}
	id := uuid.NewString()
	b.mu.Lock()
	b.orders[id] = &paperOrder{
		order: order,
		state: broker.OrderState{
			OrderID:   id,
			Status:    broker.StatusPending,
			UpdatedAt: time.Now().UTC(),
		},
	}
	b.mu.Unlock()
	return id, nil
}

func (b *Broker) Cancel(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	po, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", broker.ErrOrderNotFound, orderID)
	}
	if po.state.Status == broker.StatusPending || po.state.Status == broker.StatusPartiallyFilled {
		po.state.Status = broker.StatusCancelled
		po.state.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (b *Broker) GetStatus(_ context.Context, orderID string) (broker.OrderState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	po, ok := b.orders[orderID]
	if !ok {
		return broker.OrderState{}, fmt.Errorf("%w: %s", broker.ErrOrderNotFound, orderID)
	}
	if po.state.Status == broker.StatusPending {
		po.polls++
		if po.polls > b.FillAfterPolls {
			b.fillLocked(po)
		}
	}
	return po.state, nil
}

func (b *Broker) GetPosition(_ context.Context, contractID string) (broker.Position, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[contractID]
	if !ok || pos.Quantity == 0 {
		return broker.Position{}, false, nil
	}
	return pos, true, nil
}

// ForceStatus pins an order into a status, bypassing the poll-driven fill.
// Test hook.
func (b *Broker) ForceStatus(orderID string, status broker.OrderStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	po, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", broker.ErrOrderNotFound, orderID)
	}
	if status == broker.StatusFilled {
		b.fillLocked(po)
		return nil
	}
	po.state.Status = status
	po.state.UpdatedAt = time.Now().UTC()
	return nil
}

// SubmitCount reports how many orders were ever submitted. Test hook for
// asserting dry-run made zero brokerage calls.
func (b *Broker) SubmitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

func (b *Broker) fillLocked(po *paperOrder) {
	price := po.order.LimitPrice
	if price.Sign() <= 0 && b.MarkPrice != nil && len(po.order.Legs) > 0 {
		price = b.MarkPrice(po.order.Legs[0].ContractID)
	}
	qty := 0
	for _, leg := range po.order.Legs {
		qty += leg.Quantity
		signed := leg.Quantity
		if leg.Action.Side() == broker.Sell {
			signed = -signed
		}
		pos := b.positions[leg.ContractID]
		pos.ContractID = leg.ContractID
		pos.Quantity += signed
		pos.AvgPrice = price
		b.positions[leg.ContractID] = pos
	}
	po.state.Status = broker.StatusFilled
	po.state.FilledQty = qty
	po.state.AvgFillPrice = price
	po.state.UpdatedAt = time.Now().UTC()
}
