// Package pricing implements the Pricing Quote Service (C6): a term->rate
// table, quote issuance, and freshness/expiry tracking. Grounded on the
// teacher's rate-table-plus-struct style in pkg/settlement (SettlementMetrics).
package pricing

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/instatrade/itn/internal/money"
)

// ValidityWindow is how long a quote remains valid after issuance (invariant
// 603/109; also the 103 "valid quote" contract).
const ValidityWindow = 5 * time.Minute

// rateTable maps payment terms (days) to an annualized discount rate. Fixed
// per spec.md §4.6.
var rateTable = map[int]decimal.Decimal{
	0:  decimal.Zero,
	15: decimal.NewFromFloat(0.03),
	30: decimal.NewFromFloat(0.05),
	45: decimal.NewFromFloat(0.06),
	60: decimal.NewFromFloat(0.08),
	90: decimal.NewFromFloat(0.10),
}

// ErrUnknownTerms is returned when terms isn't one of the fixed table entries.
type ErrUnknownTerms struct{ Terms int }

func (e *ErrUnknownTerms) Error() string { return "pricing: unknown terms" }

// ProratedRate returns APR * terms/365 for the given terms.
func ProratedRate(terms int) (decimal.Decimal, error) {
	apr, ok := rateTable[terms]
	if !ok {
		return decimal.Zero, &ErrUnknownTerms{Terms: terms}
	}
	return apr.Mul(decimal.NewFromInt(int64(terms))).Div(decimal.NewFromInt(365)), nil
}

// Quote is an immutable pricing quote bound to exactly one invoice.
type Quote struct {
	InvoiceID     string
	Terms         int
	DiscountRate  decimal.Decimal
	TotalCost     decimal.Decimal
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Valid reports whether the quote has not yet expired as of asOf.
func (q *Quote) Valid(asOf time.Time) bool {
	return asOf.Before(q.ExpiresAt)
}

// Service issues and tracks pricing quotes, one per invoice.
type Service struct {
	mu     sync.RWMutex
	quotes map[string]*Quote
	clock  func() time.Time
}

// NewService creates a pricing quote service using the real wall clock.
func NewService() *Service {
	return &Service{quotes: make(map[string]*Quote), clock: time.Now}
}

// IssueQuote computes total_cost = amount*(1+prorated) and stores a new
// quote for invoiceID, replacing any prior quote (re-acceptance after a
// stale quote issues a fresh one, per spec.md §7).
func (s *Service) IssueQuote(invoiceID string, amount decimal.Decimal, terms int) (*Quote, error) {
	rate, err := ProratedRate(terms)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	q := &Quote{
		InvoiceID:    invoiceID,
		Terms:        terms,
		DiscountRate: rate,
		TotalCost:    money.Round(amount.Mul(decimal.NewFromInt(1).Add(rate))),
		CreatedAt:    now,
		ExpiresAt:    now.Add(ValidityWindow),
	}
	s.mu.Lock()
	s.quotes[invoiceID] = q
	s.mu.Unlock()
	return q, nil
}

// GetValidQuote returns the quote for invoiceID if one exists and has not
// expired, or (nil, false) otherwise.
func (s *Service) GetValidQuote(invoiceID string) (*Quote, bool) {
	s.mu.RLock()
	q, ok := s.quotes[invoiceID]
	s.mu.RUnlock()
	if !ok || !q.Valid(s.clock()) {
		return nil, false
	}
	return q, true
}
