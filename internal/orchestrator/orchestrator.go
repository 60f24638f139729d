// Package orchestrator coordinates one evaluation cycle: start a fresh
// market data snapshot, run every enabled strategy over its plays, execute
// the resulting decisions through the order gateway, reconcile in-flight
// orders and expire stale plays.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"optflow/internal/broker"
	"optflow/internal/logger"
	"optflow/internal/play"
	"optflow/internal/playstore"
	"optflow/internal/strategy"

	"golang.org/x/sync/errgroup"
)

// errPartialFill marks a partially filled order held for another cycle.
var errPartialFill = errors.New("order partially filled")

// Recorder is the analytics collaborator fed at cycle end. Implementations
// must tolerate being called from the cycle goroutine; failures are logged,
// never propagated.
type Recorder interface {
	RecordCycle(ctx context.Context, report *CycleReport) error
	RecordClosedPlay(ctx context.Context, p *play.Play) error
}

// Options is the orchestrator's immutable configuration snapshot.
type Options struct {
	Parallel     bool
	Workers      int
	DryRun       bool
	MaxRetries   int
	OrderTimeout time.Duration
}

type Orchestrator struct {
	opts    Options
	engines []strategy.Engine
	deps    strategy.Deps
	store   *playstore.Store
	history Recorder // optional

	running atomic.Bool
	last    atomic.Pointer[CycleReport]
}

// New sorts the engines by priority (lower runs first; name breaks ties so
// the order is total) and returns a ready orchestrator.
func New(opts Options, engines []strategy.Engine, deps strategy.Deps, store *playstore.Store, history Recorder) *Orchestrator {
	sorted := make([]strategy.Engine, len(engines))
	copy(sorted, engines)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority() != sorted[j].Priority() {
			return sorted[i].Priority() < sorted[j].Priority()
		}
		return sorted[i].Name() < sorted[j].Name()
	})
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Orchestrator{
		opts:    opts,
		engines: sorted,
		deps:    deps,
		store:   store,
		history: history,
	}
}

// LastReport returns the most recent completed cycle report, or nil before
// the first cycle.
func (o *Orchestrator) LastReport() *CycleReport { return o.last.Load() }

// RunCycle executes one full cycle. It is non-reentrant: if the previous
// cycle is still running the call returns immediately with a report marked
// Overlapped instead of stacking cycles.
func (o *Orchestrator) RunCycle(ctx context.Context) *CycleReport {
	if !o.running.CompareAndSwap(false, true) {
		logger.Warnf("orchestrator: previous cycle still running, skipping this tick")
		mtxCycles.WithLabelValues("skipped").Inc()
		report := newCycleReport(o.deps.Market.Cycle(), o.opts.DryRun)
		report.Overlapped = true
		return report
	}
	defer o.running.Store(false)

	cycle := o.deps.Market.StartNewCycle()
	report := newCycleReport(cycle, o.opts.DryRun)
	logger.Infof("orchestrator: cycle %d starting (dry_run=%v parallel=%v strategies=%d)",
		cycle, o.opts.DryRun, o.opts.Parallel, len(o.engines))

	if o.opts.Parallel {
		group, gctx := errgroup.WithContext(ctx)
		group.SetLimit(o.opts.Workers)
		for _, eng := range o.engines {
			eng := eng
			group.Go(func() error {
				o.runStrategy(gctx, eng, report)
				return nil
			})
		}
		group.Wait()
	} else {
		for _, eng := range o.engines {
			o.runStrategy(ctx, eng, report)
		}
	}

	o.reconcile(ctx, report)
	o.expire(ctx, report)

	report.Elapsed = time.Since(report.StartedAt)
	o.last.Store(report)
	mtxCycles.WithLabelValues("completed").Inc()
	mtxCycleDuration.Observe(report.Elapsed.Seconds())
	evaluated, opened, closed, errored := report.totals()
	logger.Infof("orchestrator: cycle %d done in %s (evaluated=%d opened=%d closed=%d errored=%d expired=%d)",
		cycle, report.Elapsed.Truncate(time.Millisecond), evaluated, opened, closed, errored, report.Expired)
	if o.history != nil {
		if err := o.history.RecordCycle(ctx, report); err != nil {
			logger.Errorf("orchestrator: recording cycle report: %v", err)
		}
	}
	return report
}

// runStrategy evaluates and executes one strategy. A panic inside the
// engine marks the strategy errored and excluded from this cycle only;
// every other strategy still runs.
func (o *Orchestrator) runStrategy(ctx context.Context, eng strategy.Engine, report *CycleReport) {
	sr := report.strategyReport(eng.Name())
	defer func() {
		if r := recover(); r != nil {
			sr.Errored++
			sr.Skipped = true
			mtxErrors.WithLabelValues(eng.Name()).Inc()
			logger.Errorf("orchestrator: strategy %s failed, excluded from this cycle: %v", eng.Name(), r)
		}
	}()

	newPlays, err := o.store.ListByState(eng.Name(), play.StateNew)
	if err != nil {
		sr.Errored++
		sr.Skipped = true
		logger.Errorf("orchestrator: loading NEW plays for %s: %v", eng.Name(), err)
		return
	}
	openPlays, err := o.store.ListByState(eng.Name(), play.StateOpen)
	if err != nil {
		sr.Errored++
		sr.Skipped = true
		logger.Errorf("orchestrator: loading OPEN plays for %s: %v", eng.Name(), err)
		return
	}
	sr.Evaluated += len(newPlays) + len(openPlays)

	entries := eng.EvaluateEntries(ctx, o.deps, newPlays)
	exits := eng.EvaluateExits(ctx, o.deps, openPlays)

	for _, d := range entries {
		if d.Kind != strategy.OpenNow {
			continue
		}
		if err := o.executeOpen(ctx, eng, d); err != nil {
			sr.Errored++
			logger.Errorf("orchestrator: opening play %s: %v", d.Play.ID, err)
			continue
		}
		sr.Opened++
		mtxOpened.WithLabelValues(eng.Name()).Inc()
	}
	for _, d := range exits {
		if d.Kind != strategy.CloseNow {
			continue
		}
		if err := o.executeClose(ctx, eng.Name(), d); err != nil {
			sr.Errored++
			logger.Errorf("orchestrator: closing play %s: %v", d.Play.ID, err)
			continue
		}
		sr.Closed++
		mtxClosed.WithLabelValues(eng.Name(), string(d.Reason)).Inc()
	}
}

// executeOpen submits the entry order and moves the play to
// PENDING_OPENING. A submission failure leaves the play in NEW so the next
// cycle re-evaluates from scratch; re-evaluating an already-triggered entry
// is safe by design.
func (o *Orchestrator) executeOpen(ctx context.Context, eng strategy.Engine, d strategy.Decision) error {
	p := d.Play
	order := buildOrder(p, d, true)
	if o.opts.DryRun {
		logger.Infof("orchestrator: [dry-run] would open play %s (%s %s, %s) — %s",
			p.ID, p.Symbol, p.Contract.OSI(p.Symbol), order.Type, d.Note)
		return nil
	}
	orderID, err := o.deps.Broker.Submit(ctx, order)
	if err != nil {
		o.noteSubmitFailure(p, err)
		return fmt.Errorf("submitting entry order: %w", err)
	}
	logger.Infof("orchestrator: play %s entry order %s submitted (%s) — %s", p.ID, orderID, order.Type, d.Note)
	return o.store.Transition(p, play.StatePendingOpening, func(np *play.Play) {
		np.EntryOrderID = orderID
		np.Retries = 0
	})
}

// executeClose submits the exit order and moves the play to PENDING_CLOSING.
func (o *Orchestrator) executeClose(ctx context.Context, strategyName string, d strategy.Decision) error {
	p := d.Play
	order := buildOrder(p, d, false)
	if o.opts.DryRun {
		logger.Infof("orchestrator: [dry-run] would close play %s (reason=%s, %s)", p.ID, d.Reason, order.Type)
		return nil
	}
	orderID, err := o.deps.Broker.Submit(ctx, order)
	if err != nil {
		o.noteSubmitFailure(p, err)
		return fmt.Errorf("submitting exit order: %w", err)
	}
	logger.Infof("orchestrator: play %s exit order %s submitted (reason=%s)", p.ID, orderID, d.Reason)
	return o.store.Transition(p, play.StatePendingClosing, func(np *play.Play) {
		np.ExitOrderID = orderID
		np.CloseReason = d.Reason
		np.Retries = 0
	})
}

// noteSubmitFailure bumps the retry counter in place; the play keeps its
// state and is retried next cycle until MaxRetries, after which it is
// flagged for manual review but never auto-terminated.
func (o *Orchestrator) noteSubmitFailure(p *play.Play, cause error) {
	p.Retries++
	if p.Retries >= o.opts.MaxRetries && !p.Flagged {
		p.Flagged = true
		logger.Errorf("orchestrator: play %s flagged after %d consecutive order failures (last: %v)",
			p.ID, p.Retries, cause)
	}
	if err := o.store.Update(p); err != nil {
		logger.Errorf("orchestrator: persisting retry count for play %s: %v", p.ID, err)
	}
}

// buildOrder maps a decision onto the gateway order model. Per-leg actions
// derive purely from the leg's signed ratio and the open/close effect:
// positive ratios buy on open and sell on close, negative the reverse.
// Single-leg plays degenerate to the engine's default actions.
func buildOrder(p *play.Play, d strategy.Decision, opening bool) broker.Order {
	legs := p.AllLegs()
	orderLegs := make([]broker.OrderLeg, 0, len(legs))
	for _, leg := range legs {
		qty := leg.Ratio
		if qty < 0 {
			qty = -qty
		}
		var action broker.Action
		switch {
		case opening && leg.Ratio > 0:
			action = broker.BuyToOpen
		case opening:
			action = broker.SellToOpen
		case leg.Ratio > 0:
			action = broker.SellToClose
		default:
			action = broker.BuyToClose
		}
		orderLegs = append(orderLegs, broker.OrderLeg{
			ContractID: leg.OSI(p.Symbol),
			Action:     action,
			Quantity:   qty,
		})
	}
	orderType := d.OrderType
	if orderType == "" || (orderType == "limit" && d.LimitPrice.Sign() <= 0) {
		orderType = "market"
	}
	tag := p.Strategy + ":" + p.ID
	return broker.Order{
		Symbol:     p.Symbol,
		Legs:       orderLegs,
		Type:       orderType,
		LimitPrice: d.LimitPrice,
		Tag:        tag,
	}
}
