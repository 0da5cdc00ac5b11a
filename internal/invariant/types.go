// Package invariant implements the Invariant Registry (C2) and the
// Enforcement Kernel (C3): a typed catalog of pre/post/rollback procedures,
// topologically ordered by declared dependency, run around every
// state-mutating action. Grounded on the teacher's sentinel-error-plus-
// struct style in auction/auction.go, generalized from a single dispatch
// site into a registry of records.
package invariant

import "time"

// Type classifies an invariant per spec.md §4.1.
type Type string

const (
	TypeState         Type = "STATE"
	TypeTransition     Type = "TRANSITION"
	TypeTemporal       Type = "TEMPORAL"
	TypeProbabilistic  Type = "PROBABILISTIC"
	TypeSecurity       Type = "SECURITY"
	TypeFinancial      Type = "FINANCIAL"
	TypeDataIntegrity  Type = "DATA_INTEGRITY"
)

// Criticality governs what happens when an invariant fails.
type Criticality string

const (
	Critical  Criticality = "CRITICAL"
	Important Criticality = "IMPORTANT"
	Optional  Criticality = "OPTIONAL"
)

// PreFunc runs before the mutating action. It reports whether the
// precondition holds.
type PreFunc func(ctx *Context) (bool, error)

// PostFunc runs after the mutating action, given the action's error (nil on
// success). It reports whether the postcondition holds.
type PostFunc func(ctx *Context, actionErr error) (bool, error)

// RollbackFunc reverses any side effect the invariant itself performed,
// given the state snapshot captured before the action ran.
type RollbackFunc func(ctx *Context, stateBefore map[string]any) error

// VerifyStateFunc is used by migrations and periodic audits outside the
// normal enforce() path.
type VerifyStateFunc func(state map[string]any) bool

// Invariant is one catalog entry: a stable id, its behavioral contract, and
// the three procedures the kernel invokes around a mutation.
type Invariant struct {
	ID          string
	Statement   string
	Type        Type
	Criticality Criticality
	DependsOn   []string
	DecayWindow time.Duration // zero means "no decay"
	Owner       string

	Pre         PreFunc
	Post        PostFunc
	Rollback    RollbackFunc
	VerifyState VerifyStateFunc

	lastVerified time.Time
}

// Expired reports whether this invariant's last successful verification is
// older than its decay window. An invariant with no decay window never
// expires.
func (inv *Invariant) Expired(asOf time.Time) bool {
	if inv.DecayWindow <= 0 {
		return false
	}
	if inv.lastVerified.IsZero() {
		return true
	}
	return asOf.Sub(inv.lastVerified) > inv.DecayWindow
}

// MarkVerified records asOf as the last successful verification time.
func (inv *Invariant) MarkVerified(asOf time.Time) {
	inv.lastVerified = asOf
}
