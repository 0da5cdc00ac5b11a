package invoice

import "fmt"

// ErrTerminalState is returned when a transition is attempted on a
// terminal invoice status (invariant 105).
var ErrTerminalState = fmt.Errorf("invoice: terminal state cannot mutate")

// ErrInvalidTransition is returned when from->to is not in AllowedTransitions
// (invariant 101).
type ErrInvalidTransition struct {
	From, To Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invoice: invalid transition %s -> %s", e.From, e.To)
}

// Transition validates and applies a status change on inv in place. The
// heavier accept() workflow (quote validity, buyer authorization, fraud
// freshness, account/KYC/sanctions checks) lives in the orchestrator, which
// composes this with the pricing, fraud, and balance components under the
// enforcement kernel; Transition itself only enforces the state-machine
// shape (101, 105).
func Transition(inv *Invoice, to Status) error {
	if inv.Status.IsTerminal() {
		return ErrTerminalState
	}
	if !CanTransition(inv.Status, to) {
		return &ErrInvalidTransition{From: inv.Status, To: to}
	}
	inv.Status = to
	return nil
}
