package fraud

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEvaluateLowRisk(t *testing.T) {
	require := require.New(t)
	in := Input{
		SupplierID:               "SUP-1",
		BuyerID:                  "BUY-1",
		Amount:                   decimal.NewFromInt(1000),
		LineItemCount:            2,
		CreatedAt:                time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC),
		InvoicesLastHour:         1,
		InvoicesLastDay:          3,
		SupplierAvgAmount:        decimal.NewFromInt(1100),
		RelationshipInvoiceCount: 12,
	}
	score := Evaluate("INV-1", in)
	require.True(score.Total.LessThan(decimal.NewFromFloat(0.25)))
	require.Equal(ClassLow, score.Classification)
	require.Equal(ActionApprove, score.Action)
}

func TestEvaluateVelocitySpikeAndNewRelationship(t *testing.T) {
	require := require.New(t)
	in := Input{
		SupplierID:               "SUP-1",
		BuyerID:                  "BUY-1",
		Amount:                   decimal.NewFromInt(1000),
		CreatedAt:                time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC),
		InvoicesLastHour:         15,
		RelationshipInvoiceCount: 0,
	}
	score := Evaluate("INV-2", in)
	require.True(score.Total.GreaterThanOrEqual(decimal.NewFromFloat(0.25)))

	var sawVelocity, sawNewRel bool
	for _, s := range score.Signals {
		if s.Name == "velocity_spike" {
			sawVelocity = s.Triggered
		}
		if s.Name == "new_relationship" {
			sawNewRel = s.Triggered
		}
	}
	require.True(sawVelocity)
	require.True(sawNewRel)
}

func TestEvaluateCriticalCapsAtOne(t *testing.T) {
	require := require.New(t)
	in := Input{
		SupplierID:               "SUP-1",
		BuyerID:                  "BUY-1",
		Amount:                   decimal.NewFromInt(50000),
		CreatedAt:                time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC), // off-hours
		InvoicesLastHour:         20,
		InvoicesLastDay:          80,
		SupplierAvgAmount:        decimal.NewFromInt(100),
		RelationshipInvoiceCount: 0,
		SupplierCountry:          "US",
		BuyerCountry:             "FR",
		KnownFraudPatterns:       map[string]bool{Fingerprint("SUP-1", "BUY-1", decimal.NewFromInt(50000), 0): true},
	}
	score := Evaluate("INV-3", in)
	require.True(score.Total.LessThanOrEqual(decimal.NewFromInt(1)))
	require.Equal(ClassCritical, score.Classification)
	require.Equal(ActionReject, score.Action)
}

func TestScoreFresh(t *testing.T) {
	require := require.New(t)
	sc := Score{CalculatedAt: time.Now()}
	require.True(sc.Fresh(time.Now().Add(time.Hour)))
	require.False(sc.Fresh(time.Now().Add(25 * time.Hour)))
}
