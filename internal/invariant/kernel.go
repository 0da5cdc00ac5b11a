package invariant

import (
	"time"

	"github.com/instatrade/itn/internal/ledger"
	"github.com/instatrade/itn/pkg/log"
	"github.com/instatrade/itn/pkg/metric"
)

// ActionFunc is the single state-mutating unit enforce() wraps.
type ActionFunc func(ctx *Context) error

// Kernel is the enforcement kernel (C3): the only path that may mutate
// persistent entities. Every mutation crosses Enforce, which consults the
// registry and writes every decision to the ledger.
type Kernel struct {
	registry *Registry
	ledger   *ledger.Ledger
	log      log.Logger
	metrics  *metric.Metrics
}

// NewKernel wires a kernel to its registry, ledger, logger, and metrics.
func NewKernel(registry *Registry, led *ledger.Ledger, logger log.Logger, metrics *metric.Metrics) *Kernel {
	return &Kernel{registry: registry, ledger: led, log: logger, metrics: metrics}
}

// Enforce runs action under the named invariants: snapshot, ordered
// pre-checks, the action itself, ordered post-checks, and — on an action
// error or a failed post-check — compensating rollback in reverse dependency
// order. A failed pre-check returns before the action and runs no rollback.
func (k *Kernel) Enforce(ctx *Context, invariantIDs []string, action ActionFunc) error {
	stateBefore := ctx.Snapshot()

	order, err := k.registry.TopoSort(invariantIDs)
	if err != nil {
		return err
	}

	if err := k.runPhase(ctx, order, ledger.PhasePre, nil); err != nil {
		return err
	}

	actionErr := action(ctx)
	if actionErr != nil {
		if rbErr := k.rollback(ctx, order, stateBefore); rbErr != nil {
			return rbErr
		}
		return actionErr
	}

	if err := k.runPhase(ctx, order, ledger.PhasePost, actionErr); err != nil {
		if rbErr := k.rollback(ctx, order, stateBefore); rbErr != nil {
			return rbErr
		}
		return err
	}

	return nil
}

// runPhase executes either every Pre or every Post procedure, in order,
// recording a ledger entry for each and short-circuiting on the first
// failure.
func (k *Kernel) runPhase(ctx *Context, order []string, phase ledger.Phase, actionErr error) error {
	for _, id := range order {
		inv, ok := k.registry.Get(id)
		if !ok {
			continue
		}

		var (
			passed bool
			err    error
		)
		switch phase {
		case ledger.PhasePre:
			if inv.Pre != nil {
				passed, err = inv.Pre(ctx)
			} else {
				passed = true
			}
		case ledger.PhasePost:
			if inv.Post != nil {
				passed, err = inv.Post(ctx, actionErr)
			} else {
				passed = true
			}
		}

		checkType := "pre"
		if phase == ledger.PhasePost {
			checkType = "post"
		}

		result := passed && err == nil
		action := ledger.ActionProceed
		if !result {
			if phase == ledger.PhasePre {
				action = ledger.ActionFreeze
			} else {
				action = ledger.ActionRollback
			}
		}

		k.ledger.Record(id, phase, result, action, ctx.Snapshot())
		if k.metrics != nil {
			k.metrics.InvariantChecks.WithLabelValues(id, checkType, resultLabel(result)).Inc()
		}
		if k.log != nil {
			k.log.Debug("invariant check",
				log.String("invariant_id", id), log.String("phase", string(phase)))
		}

		if result {
			inv.MarkVerified(time.Now())
			continue
		}

		if k.metrics != nil {
			k.metrics.InvariantViolations.WithLabelValues(id, string(inv.Criticality)).Inc()
		}
		if phase == ledger.PhasePre {
			return &Violation{Phase: PhasePre, InvariantID: id}
		}
		return &Violation{Phase: PhasePost, InvariantID: id}
	}
	return nil
}

// rollback runs each invariant's Rollback procedure against stateBefore, in
// reverse dependency order. A failing rollback escalates to Compromised.
func (k *Kernel) rollback(ctx *Context, order []string, stateBefore map[string]any) error {
	if k.metrics != nil {
		k.metrics.Rollbacks.Inc()
	}
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		inv, ok := k.registry.Get(id)
		if !ok || inv.Rollback == nil {
			continue
		}
		if err := inv.Rollback(ctx, stateBefore); err != nil {
			if k.log != nil {
				k.log.Error("rollback failed, escalating to system compromised",
					log.String("invariant_id", id), log.Err(err))
			}
			return &Compromised{InvariantID: id, Cause: err}
		}
	}
	return nil
}

func resultLabel(b bool) string {
	if b {
		return "pass"
	}
	return "fail"
}
