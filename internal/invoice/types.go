// Package invoice implements the Invoice Store (C4) and the Invoice
// Lifecycle State Machine (C5). Grounded on the teacher's mutex-guarded map
// plus secondary-index style in pkg/storage (MockFDBBackend's impression
// store) and pkg/settlement/budget.go's Budget map.
package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the invoice's legal status (invariant 101).
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusAccepted     Status = "ACCEPTED"
	StatusFraudReview  Status = "FRAUD_REVIEW"
	StatusSettled      Status = "SETTLED"
	StatusRejected     Status = "REJECTED"
	StatusExpired      Status = "EXPIRED"
	StatusFailed       Status = "FAILED"
)

// AllowedTerms enumerates the allowed payment terms, in days (invariant 007).
var AllowedTerms = []int{0, 15, 30, 45, 60, 90}

// IsAllowedTerms reports whether terms is one of the fixed set.
func IsAllowedTerms(terms int) bool {
	for _, t := range AllowedTerms {
		if t == terms {
			return true
		}
	}
	return false
}

// LineItem is one priced entry on an invoice.
type LineItem struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// Amount is quantity * unit_price, the derived line amount.
func (li LineItem) Amount() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// Invoice is the central financed entity. Created by a supplier action;
// mutated only through lifecycle transitions; never deleted outside
// compensating rollback.
type Invoice struct {
	ID           string
	SupplierID   string
	BuyerID      string
	Amount       decimal.Decimal
	Currency     string // supplemented field, see SPEC_FULL.md §3
	LineItems    []LineItem
	Terms        int
	ContentHash  string
	Status       Status
	CreatedAt    time.Time

	// Supplemented multi-currency fields (original_source/itn_multicurrency_v1.py).
	FXRate      *decimal.Decimal
	FXTimestamp *time.Time
}

// LineItemTotal sums every line item's derived amount.
func (inv *Invoice) LineItemTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range inv.LineItems {
		total = total.Add(li.Amount())
	}
	return total
}

// IsTerminal reports whether inv.Status can never mutate again (invariant 105).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSettled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// AllowedTransitions is the fixed edge set for invariant 101.
var AllowedTransitions = map[Status][]Status{
	StatusPending:     {StatusAccepted, StatusRejected, StatusExpired, StatusFraudReview},
	StatusAccepted:    {StatusSettled, StatusFailed},
	StatusFraudReview: {StatusAccepted, StatusRejected},
	StatusFailed:      {StatusRejected},
}

// CanTransition reports whether from->to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, allowed := range AllowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
