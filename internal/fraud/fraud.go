// Package fraud implements the Fraud Engine (C8): eight weighted signals
// producing a score in [0,1], with a derived classification and
// enforcement action. Grounded on the teacher's scored-decision shape in
// auction/auction.go (RunAuction's per-bid evaluation), generalized to a
// fixed weighted-signal panel.
package fraud

import (
	"crypto/md5" //nolint:gosec // duplicate-pattern fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Classification buckets a total score into a risk tier.
type Classification string

const (
	ClassLow      Classification = "LOW"
	ClassMedium   Classification = "MEDIUM"
	ClassHigh     Classification = "HIGH"
	ClassCritical Classification = "CRITICAL"
)

// Action is the enforcement action a classification implies.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReview  Action = "REVIEW"
	ActionReject  Action = "REJECT"
)

// RejectThreshold is the score at or above which invariant 202/302 treats an
// invoice as blocked.
var RejectThreshold = decimal.NewFromFloat(0.75)

// Signal is one contribution to the total score.
type Signal struct {
	Name       string
	Weight     decimal.Decimal
	Triggered  bool
	Confidence decimal.Decimal
	Reason     string
}

// Contribution is Weight*Confidence if Triggered, else zero.
func (s Signal) Contribution() decimal.Decimal {
	if !s.Triggered {
		return decimal.Zero
	}
	return s.Weight.Mul(s.Confidence)
}

// weights sums to 1.0, per spec.md §4.8.
var weights = map[string]decimal.Decimal{
	"velocity_spike":    decimal.NewFromFloat(0.25),
	"unusual_amount":    decimal.NewFromFloat(0.20),
	"new_relationship":  decimal.NewFromFloat(0.15),
	"duplicate_pattern": decimal.NewFromFloat(0.15),
	"geographic_mismatch": decimal.NewFromFloat(0.10),
	"off_hours":         decimal.NewFromFloat(0.05),
	"round_amount":      decimal.NewFromFloat(0.05),
	"rapid_acceptance":  decimal.NewFromFloat(0.05),
}

// Input is everything the eight signals need to evaluate an invoice.
type Input struct {
	SupplierID              string
	BuyerID                 string
	Amount                  decimal.Decimal
	LineItemCount           int
	CreatedAt               time.Time
	InvoicesLastHour        int
	InvoicesLastDay         int
	SupplierAvgAmount       decimal.Decimal
	RelationshipInvoiceCount int
	KnownFraudPatterns      map[string]bool
	SupplierCountry         string
	BuyerCountry            string
	IsAcceptanceEvaluation  bool // rapid_acceptance only applies at acceptance time
	AcceptedWithinSeconds   float64
}

// Score is the computed fraud evaluation for one invoice.
type Score struct {
	InvoiceID     string
	Total         decimal.Decimal
	Signals       []Signal
	CalculatedAt  time.Time
	Classification Classification
	Action        Action
}

// FreshnessWindow is the maximum age of a score before it must be recomputed
// (invariant 202).
const FreshnessWindow = 24 * time.Hour

// Fresh reports whether sc's age at asOf is under FreshnessWindow.
func (sc Score) Fresh(asOf time.Time) bool {
	return asOf.Sub(sc.CalculatedAt) < FreshnessWindow
}

// Evaluate runs every signal against in and returns the resulting Score.
func Evaluate(invoiceID string, in Input) Score {
	signals := []Signal{
		velocitySpike(in),
		unusualAmount(in),
		newRelationship(in),
		duplicatePattern(in),
		geographicMismatch(in),
		offHours(in),
		roundAmount(in),
		rapidAcceptance(in),
	}

	total := decimal.Zero
	for _, s := range signals {
		total = total.Add(s.Contribution())
	}
	if total.GreaterThan(decimal.NewFromInt(1)) {
		total = decimal.NewFromInt(1)
	}

	class, action := classify(total)
	return Score{
		InvoiceID:      invoiceID,
		Total:          total,
		Signals:        signals,
		CalculatedAt:   in.CreatedAt,
		Classification: class,
		Action:         action,
	}
}

func classify(total decimal.Decimal) (Classification, Action) {
	switch {
	case total.LessThan(decimal.NewFromFloat(0.25)):
		return ClassLow, ActionApprove
	case total.LessThan(decimal.NewFromFloat(0.50)):
		return ClassMedium, ActionReview
	case total.LessThan(decimal.NewFromFloat(0.75)):
		return ClassHigh, ActionReview
	default:
		return ClassCritical, ActionReject
	}
}

func sig(name string, triggered bool, confidence decimal.Decimal, reason string) Signal {
	return Signal{Name: name, Weight: weights[name], Triggered: triggered, Confidence: confidence, Reason: reason}
}

func velocitySpike(in Input) Signal {
	triggered := in.InvoicesLastHour > 10 || in.InvoicesLastDay > 50
	reason := ""
	if triggered {
		reason = fmt.Sprintf("last_hour=%d last_day=%d", in.InvoicesLastHour, in.InvoicesLastDay)
	}
	return sig("velocity_spike", triggered, decimal.NewFromInt(1), reason)
}

func newRelationship(in Input) Signal {
	triggered := in.RelationshipInvoiceCount == 0
	return sig("new_relationship", triggered, decimal.NewFromFloat(0.5), "first invoice between parties")
}

func unusualAmount(in Input) Signal {
	if in.SupplierAvgAmount.IsZero() {
		return sig("unusual_amount", false, decimal.Zero, "")
	}
	ratio := in.Amount.Div(in.SupplierAvgAmount)
	high := decimal.NewFromInt(3)
	low := decimal.NewFromFloat(0.1)
	if ratio.GreaterThan(high) {
		// Scale confidence linearly with distance above the band, capped at 1.
		excess := ratio.Sub(high).Div(high)
		conf := capConfidence(excess)
		return sig("unusual_amount", true, conf, fmt.Sprintf("ratio=%s above band", ratio.StringFixed(2)))
	}
	if ratio.LessThan(low) {
		deficit := low.Sub(ratio).Div(low)
		conf := capConfidence(deficit)
		return sig("unusual_amount", true, conf, fmt.Sprintf("ratio=%s below band", ratio.StringFixed(2)))
	}
	return sig("unusual_amount", false, decimal.Zero, "")
}

func capConfidence(d decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if d.GreaterThan(one) {
		return one
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func offHours(in Input) Signal {
	h := in.CreatedAt.UTC().Hour()
	triggered := h >= 2 && h < 5
	return sig("off_hours", triggered, decimal.NewFromFloat(0.6), "created between 02:00-05:00 UTC")
}

func roundAmount(in Input) Signal {
	tenK := decimal.NewFromInt(10000)
	triggered := in.Amount.GreaterThanOrEqual(tenK) && in.Amount.Mod(tenK).IsZero()
	return sig("round_amount", triggered, decimal.NewFromFloat(0.3), "amount is an exact multiple of 10,000")
}

func duplicatePattern(in Input) Signal {
	key := fmt.Sprintf("%s|%s|%s|%d", in.SupplierID, in.BuyerID, in.Amount.String(), in.LineItemCount)
	sum := md5.Sum([]byte(key)) //nolint:gosec
	fingerprint := hex.EncodeToString(sum[:])
	triggered := in.KnownFraudPatterns != nil && in.KnownFraudPatterns[fingerprint]
	return sig("duplicate_pattern", triggered, decimal.NewFromInt(1), "matches a known fraud fingerprint")
}

func geographicMismatch(in Input) Signal {
	triggered := in.SupplierCountry != "" && in.BuyerCountry != "" && in.SupplierCountry != in.BuyerCountry
	return sig("geographic_mismatch", triggered, decimal.NewFromFloat(0.7), "supplier/buyer country mismatch")
}

func rapidAcceptance(in Input) Signal {
	if !in.IsAcceptanceEvaluation {
		return sig("rapid_acceptance", false, decimal.Zero, "")
	}
	triggered := in.AcceptedWithinSeconds > 0 && in.AcceptedWithinSeconds < 2
	return sig("rapid_acceptance", triggered, decimal.NewFromFloat(0.4), "accepted within 2s of creation")
}

// Fingerprint exposes the duplicate_pattern key for callers building the
// known-fraud-pattern set.
func Fingerprint(supplierID, buyerID string, amount decimal.Decimal, lineItemCount int) string {
	key := fmt.Sprintf("%s|%s|%s|%d", supplierID, buyerID, amount.String(), lineItemCount)
	sum := md5.Sum([]byte(key)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
