// Package balance implements the Balance / Rails Adapter (C11): credit,
// debit, and advance primitives over account balances, plus snapshot/restore
// for compensating rollback and a rail-transfer primitive that returns a
// transaction id. Grounded on the teacher's BudgetManager in
// pkg/settlement/budget.go (mutex-guarded map, commitment-style snapshot,
// settlement receipts).
package balance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("balance: insufficient funds")
	ErrAccountNotFound   = errors.New("balance: account not found")
	ErrUnknownSnapshot   = errors.New("balance: unknown snapshot token")
)

// AccountStatus per spec.md §3.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountSuspended AccountStatus = "SUSPENDED"
	AccountFrozen    AccountStatus = "FROZEN"
)

// KYCStatus per spec.md §3.
type KYCStatus string

const (
	KYCVerified KYCStatus = "VERIFIED"
	KYCPending  KYCStatus = "PENDING"
	KYCRejected KYCStatus = "REJECTED"
)

// Account is a supplier, buyer, or capital-provider balance record.
type Account struct {
	ID                 string
	Status             AccountStatus
	KYC                KYCStatus
	Balance            decimal.Decimal
	CreditLimit        decimal.Decimal // buyer only
	OutstandingBalance decimal.Decimal // buyer only
}

// Transport performs the actual rail transfer. Implementations are an
// external collaborator (spec.md §6); the reference one in internal/external
// simulates latency without a real sleep, per spec.md §9's redesign note.
type Transport interface {
	Transfer(ctx context.Context, rail string, from, to string, amount decimal.Decimal) (txnID string, err error)
}

// Ledger holds every account balance and exposes the credit/debit/advance
// primitives settlement legs compose.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*Account

	snapMu    sync.Mutex
	snapshots map[string]map[string]Account
}

// NewLedger creates an empty balance ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts:  make(map[string]*Account),
		snapshots: make(map[string]map[string]Account),
	}
}

// Upsert adds or replaces an account record.
func (l *Ledger) Upsert(a *Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *a
	l.accounts[a.ID] = &cp
}

// Get returns a copy of the named account.
func (l *Ledger) Get(id string) (*Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	cp := *a
	return &cp, nil
}

// Credit adds amount to acctID's balance.
func (l *Ledger) Credit(acctID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[acctID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, acctID)
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

// Debit subtracts amount from acctID's balance, failing if it would go
// negative.
func (l *Ledger) Debit(acctID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[acctID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, acctID)
	}
	if a.Balance.LessThan(amount) {
		return fmt.Errorf("%w: account %s", ErrInsufficientFunds, acctID)
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Freeze marks an account FROZEN, used by the sanctions-violation rollback
// (invariant 401) to lock both parties out of further activity.
func (l *Ledger) Freeze(acctID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[acctID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, acctID)
	}
	a.Status = AccountFrozen
	return nil
}

// Advance credits a capital provider's balance and is otherwise identical to
// Credit; kept distinct so settlement legs read clearly (leg 1 credits the
// supplier, leg 3 advances the capital ledger).
func (l *Ledger) Advance(acctID string, amount decimal.Decimal) error {
	return l.Credit(acctID, amount)
}

// Transfer moves amount from->to over the given rail via t, recording no
// balance side effects itself — callers pair Transfer with explicit
// Credit/Debit calls so partial failure is independently recoverable.
func (l *Ledger) Transfer(ctx context.Context, t Transport, rail, from, to string, amount decimal.Decimal) (string, error) {
	return t.Transfer(ctx, rail, from, to, amount)
}

// Snapshot captures every account's current state and returns an opaque
// token for later Restore.
func (l *Ledger) Snapshot() string {
	l.mu.RLock()
	cp := make(map[string]Account, len(l.accounts))
	for id, a := range l.accounts {
		cp[id] = *a
	}
	l.mu.RUnlock()

	token := uuid.NewString()
	l.snapMu.Lock()
	l.snapshots[token] = cp
	l.snapMu.Unlock()
	return token
}

// Restore reverts every account to its state at the time Snapshot produced
// token, supporting reverse rollback without touching the decision ledger.
func (l *Ledger) Restore(token string) error {
	l.snapMu.Lock()
	cp, ok := l.snapshots[token]
	l.snapMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSnapshot, token)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, a := range cp {
		acct := a
		l.accounts[id] = &acct
	}
	return nil
}

// Balances reports the current snapshot sorted by account id, for
// diagnostics and tests. The Balance Ledger holds current state only, not a
// movement log; Σcredits-Σdebits per settlement is recorded on the
// settlement records (see internal/settlement).
func (l *Ledger) Balances() []Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
