// Package ledger implements the Decision Ledger (C1): an append-only,
// signature-chained record of every pre/post invariant check and rollback
// the enforcement kernel performs. Entries are never rewritten; corrections
// are appended. Grounded on the teacher's mutex-guarded-slice-plus-receipts
// shape in pkg/settlement/budget.go (BudgetManager.receipts).
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/instatrade/itn/pkg/seal"
)

// Phase distinguishes a pre-action check from a post-action check.
type Phase string

const (
	PhasePre  Phase = "PRE"
	PhasePost Phase = "POST"
)

// Action is the enforcement decision recorded alongside a check outcome.
type Action string

const (
	ActionProceed  Action = "PROCEED"
	ActionRollback Action = "ROLLBACK"
	ActionFreeze   Action = "FREEZE"
)

// Entry is one append-only Decision Ledger record.
type Entry struct {
	ID          string
	InvariantID string
	Phase       Phase
	Result      bool
	Action      Action
	Timestamp   time.Time
	Snapshot    map[string]any
	Signature   string
}

// signingPayload is the exact byte sequence the HMAC is computed over:
// invariant_id|result|timestamp_iso, per spec.md §4.2.
func signingPayload(invariantID string, result bool, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s|%t|%s", invariantID, result, ts.UTC().Format(time.RFC3339Nano)))
}

// Ledger is the append-only decision log. It is the only component allowed
// to mutate its own entries slice; everything else observes it through the
// exported methods below.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	secret  *seal.Secret
}

// New creates an empty ledger signed with secret.
func New(secret *seal.Secret) *Ledger {
	return &Ledger{secret: secret}
}

// Record computes the entry's signature and appends it. The caller supplies
// everything but the signature and id.
func (l *Ledger) Record(invariantID string, phase Phase, result bool, action Action, snapshot map[string]any) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := now()
	// Ledger timestamps are monotonically non-decreasing (§5); if the clock
	// hasn't advanced since the last append, nudge forward by one tick.
	if n := len(l.entries); n > 0 && !ts.After(l.entries[n-1].Timestamp) {
		ts = l.entries[n-1].Timestamp.Add(time.Nanosecond)
	}

	entry := Entry{
		ID:          uuid.NewString(),
		InvariantID: invariantID,
		Phase:       phase,
		Result:      result,
		Action:      action,
		Timestamp:   ts,
		Snapshot:    snapshot,
	}
	entry.Signature = l.secret.Sign(signingPayload(invariantID, result, ts))
	l.entries = append(l.entries, entry)
	return entry
}

// now is a var so tests can freeze time without touching the wall clock.
var now = time.Now

// LastGoodState returns the snapshot carried by the most recent PROCEED
// entry, or nil if none exists.
func (l *Ledger) LastGoodState() map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Action == ActionProceed {
			return l.entries[i].Snapshot
		}
	}
	return nil
}

// VerifyChainIntegrity recomputes every entry's signature and reports
// whether all of them still match (invariant 601).
func (l *Ledger) VerifyChainIntegrity() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		want := l.secret.Sign(signingPayload(e.InvariantID, e.Result, e.Timestamp))
		if want != e.Signature {
			return false
		}
	}
	return true
}

// Entries returns a read-only snapshot copy of the ledger for audit iteration.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Totals reports pass/fail counts across every recorded check, used by the
// orchestrator's health snapshot and the system_health_score gauge.
func (l *Ledger) Totals() (passed, total int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		total++
		if e.Result {
			passed++
		}
	}
	return passed, total
}
