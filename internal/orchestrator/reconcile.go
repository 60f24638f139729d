package orchestrator

import (
	"context"
	"time"

	"optflow/internal/broker"
	"optflow/internal/logger"
	"optflow/internal/play"
)

// reconcile advances plays whose entry/exit orders were in flight at the
// end of a previous cycle. Dry-run skips the whole pass: it makes no
// brokerage calls and no state transitions.
func (o *Orchestrator) reconcile(ctx context.Context, report *CycleReport) {
	if o.opts.DryRun {
		return
	}
	o.reconcileOpening(ctx)
	o.reconcileClosing(ctx)
}

func (o *Orchestrator) reconcileOpening(ctx context.Context) {
	// ListByState orders by creation time, which doubles as the
	// deterministic tie-break when several OCO-linked plays fill in the
	// same cycle: the earliest-created fill wins and cancels its siblings.
	pending, err := o.store.ListByState("", play.StatePendingOpening)
	if err != nil {
		logger.Errorf("orchestrator: loading PENDING_OPENING plays: %v", err)
		return
	}
	for _, p := range pending {
		state, err := o.deps.Broker.GetStatus(ctx, p.EntryOrderID)
		if err != nil {
			logger.Warnf("orchestrator: status of entry order %s (play %s): %v", p.EntryOrderID, p.ID, err)
			continue
		}
		switch state.Status {
		case broker.StatusFilled:
			fill := state.AvgFillPrice
			if err := o.store.Transition(p, play.StateOpen, func(np *play.Play) {
				np.OpenedAt = time.Now().UTC()
				np.EntryPremium = fill.Abs()
				np.Retries = 0
			}); err != nil {
				logger.Errorf("orchestrator: marking play %s OPEN: %v", p.ID, err)
				continue
			}
			logger.Infof("orchestrator: play %s entry filled at %s, now OPEN", p.ID, fill)
			o.onFilled(ctx, p)
		case broker.StatusCancelled, broker.StatusRejected:
			o.revertOpening(p, string(state.Status))
		case broker.StatusPartiallyFilled:
			// Hold and retry next cycle, bounded like any other order
			// failure so a forever-partial order eventually gets flagged.
			o.noteSubmitFailure(p, errPartialFill)
		case broker.StatusPending:
			if o.orderTimedOut(p) {
				if err := o.deps.Broker.Cancel(ctx, p.EntryOrderID); err != nil {
					logger.Warnf("orchestrator: cancelling stale entry order %s: %v", p.EntryOrderID, err)
					continue
				}
				o.revertOpening(p, "timeout")
			}
		}
	}
}

func (o *Orchestrator) reconcileClosing(ctx context.Context) {
	pending, err := o.store.ListByState("", play.StatePendingClosing)
	if err != nil {
		logger.Errorf("orchestrator: loading PENDING_CLOSING plays: %v", err)
		return
	}
	for _, p := range pending {
		state, err := o.deps.Broker.GetStatus(ctx, p.ExitOrderID)
		if err != nil {
			logger.Warnf("orchestrator: status of exit order %s (play %s): %v", p.ExitOrderID, p.ID, err)
			continue
		}
		switch state.Status {
		case broker.StatusFilled:
			if err := o.store.Transition(p, play.StateClosed, nil); err != nil {
				logger.Errorf("orchestrator: marking play %s CLOSED: %v", p.ID, err)
				continue
			}
			logger.Infof("orchestrator: play %s exit filled at %s, CLOSED (reason=%s)", p.ID, state.AvgFillPrice, p.CloseReason)
			o.recordClosed(ctx, p)
		case broker.StatusCancelled, broker.StatusRejected:
			o.revertClosing(p, string(state.Status))
		case broker.StatusPartiallyFilled:
			o.noteSubmitFailure(p, errPartialFill)
		case broker.StatusPending:
			if o.orderTimedOut(p) {
				if err := o.deps.Broker.Cancel(ctx, p.ExitOrderID); err != nil {
					logger.Warnf("orchestrator: cancelling stale exit order %s: %v", p.ExitOrderID, err)
					continue
				}
				o.revertClosing(p, "timeout")
			}
		}
	}
}

func (o *Orchestrator) revertOpening(p *play.Play, why string) {
	if err := o.store.Transition(p, play.StateNew, func(np *play.Play) {
		np.EntryOrderID = ""
	}); err != nil {
		logger.Errorf("orchestrator: reverting play %s to NEW: %v", p.ID, err)
		return
	}
	logger.Warnf("orchestrator: play %s entry order %s, reverted to NEW", p.ID, why)
}

func (o *Orchestrator) revertClosing(p *play.Play, why string) {
	if err := o.store.Transition(p, play.StateOpen, func(np *play.Play) {
		np.ExitOrderID = ""
		np.CloseReason = ""
	}); err != nil {
		logger.Errorf("orchestrator: reverting play %s to OPEN: %v", p.ID, err)
		return
	}
	logger.Warnf("orchestrator: play %s exit order %s, reverted to OPEN", p.ID, why)
}

func (o *Orchestrator) orderTimedOut(p *play.Play) bool {
	if o.opts.OrderTimeout <= 0 {
		return false
	}
	return time.Since(p.UpdatedAt) > o.opts.OrderTimeout
}

// onFilled handles the play's conditional links after an entry fill:
// one-cancels-other siblings are retired, one-triggers-other plays wake up.
func (o *Orchestrator) onFilled(ctx context.Context, filled *play.Play) {
	for _, siblingID := range filled.OCO {
		sibling, err := o.store.Get(siblingID)
		if err != nil {
			logger.Warnf("orchestrator: OCO sibling %s of play %s: %v", siblingID, filled.ID, err)
			continue
		}
		switch sibling.State {
		case play.StateNew:
			if err := o.store.Transition(sibling, play.StateExpired, func(np *play.Play) {
				np.CloseReason = play.ReasonConditional
			}); err != nil {
				logger.Errorf("orchestrator: retiring OCO sibling %s: %v", sibling.ID, err)
				continue
			}
			logger.Infof("orchestrator: OCO sibling %s retired after play %s filled", sibling.ID, filled.ID)
		case play.StatePendingOpening:
			if sibling.EntryOrderID != "" {
				if err := o.deps.Broker.Cancel(ctx, sibling.EntryOrderID); err != nil {
					logger.Warnf("orchestrator: cancelling OCO sibling %s order: %v", sibling.ID, err)
					continue
				}
			}
			if err := o.store.Transition(sibling, play.StateExpired, func(np *play.Play) {
				np.EntryOrderID = ""
				np.CloseReason = play.ReasonConditional
			}); err != nil {
				logger.Errorf("orchestrator: retiring OCO sibling %s: %v", sibling.ID, err)
			}
		}
	}
	for _, linkedID := range filled.OTO {
		linked, err := o.store.Get(linkedID)
		if err != nil {
			logger.Warnf("orchestrator: OTO link %s of play %s: %v", linkedID, filled.ID, err)
			continue
		}
		if linked.State != play.StateNew || !linked.Dormant {
			continue
		}
		linked.Dormant = false
		if err := o.store.Update(linked); err != nil {
			logger.Errorf("orchestrator: arming OTO play %s: %v", linked.ID, err)
			continue
		}
		logger.Infof("orchestrator: OTO play %s armed after play %s filled", linked.ID, filled.ID)
	}
}

// expire moves plays whose contract expiration has passed to EXPIRED. This
// is a cross-cutting orchestrator responsibility independent of any
// strategy. Dry-run observes but does not transition.
func (o *Orchestrator) expire(ctx context.Context, report *CycleReport) {
	now := time.Now().UTC()
	for _, st := range []play.State{play.StateNew, play.StatePendingOpening, play.StateOpen} {
		plays, err := o.store.ListByState("", st)
		if err != nil {
			logger.Errorf("orchestrator: loading %s plays for expiry: %v", st, err)
			continue
		}
		for _, p := range plays {
			if !expired(p, now) {
				continue
			}
			if o.opts.DryRun {
				logger.Infof("orchestrator: [dry-run] play %s is past expiration", p.ID)
				continue
			}
			if st == play.StatePendingOpening && p.EntryOrderID != "" {
				if err := o.deps.Broker.Cancel(ctx, p.EntryOrderID); err != nil {
					logger.Warnf("orchestrator: cancelling expired play %s order: %v", p.ID, err)
					continue
				}
			}
			if err := o.store.Transition(p, play.StateExpired, func(np *play.Play) {
				np.EntryOrderID = ""
			}); err != nil {
				logger.Errorf("orchestrator: expiring play %s: %v", p.ID, err)
				continue
			}
			report.Expired++
			mtxExpired.Inc()
			logger.Infof("orchestrator: play %s expired (%s)", p.ID, p.Contract.Expiration.Format("2006-01-02"))
			o.recordClosed(ctx, p)
		}
	}
}

// expired reports whether every leg of the play is past expiration; mixed
// expirations keep the play alive until the last leg dies.
func expired(p *play.Play, now time.Time) bool {
	for _, leg := range p.AllLegs() {
		if !leg.Expired(now) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) recordClosed(ctx context.Context, p *play.Play) {
	if o.history == nil {
		return
	}
	if err := o.history.RecordClosedPlay(ctx, p); err != nil {
		logger.Errorf("orchestrator: recording terminal play %s: %v", p.ID, err)
	}
}
