package router

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func healthyRail(name string, p99 time.Duration, cost decimal.Decimal, asOf time.Time) *Rail {
	return &Rail{
		Name: name, P99: p99, CostPerTxn: cost,
		SuccessRate: decimal.NewFromFloat(0.99), DailyLimit: decimal.NewFromInt(1000000),
		Status: RailUp, LastHealthCheck: asOf,
	}
}

func TestSelectSpeedPriority(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	reg := NewRegistry()
	reg.Upsert(healthyRail("FAST", 100*time.Millisecond, decimal.NewFromFloat(2), now))
	reg.Upsert(healthyRail("SLOW", 900*time.Millisecond, decimal.NewFromFloat(1), now))

	r, err := Select(reg, decimal.NewFromInt(1000), PrioritySpeed, now)
	require.NoError(err)
	require.Equal("FAST", r.Name)
}

func TestSelectCostPriority(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	reg := NewRegistry()
	reg.Upsert(healthyRail("CHEAP", 500*time.Millisecond, decimal.NewFromFloat(0.5), now))
	reg.Upsert(healthyRail("PRICEY", 200*time.Millisecond, decimal.NewFromFloat(5), now))

	r, err := Select(reg, decimal.NewFromInt(1000), PriorityCost, now)
	require.NoError(err)
	require.Equal("CHEAP", r.Name)
}

func TestEligibleRejectsStaleHealthCheck(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	reg := NewRegistry()
	reg.Upsert(healthyRail("STALE", 200*time.Millisecond, decimal.NewFromFloat(1), now.Add(-time.Minute)))

	_, err := Select(reg, decimal.NewFromInt(1000), PriorityBalanced, now)
	require.ErrorIs(err, ErrNoRailAvailable)
}

func TestEligibleRejectsOverCapacity(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	reg := NewRegistry()
	r := healthyRail("TIGHT", 200*time.Millisecond, decimal.NewFromFloat(1), now)
	r.DailyLimit = decimal.NewFromInt(100)
	r.CurrentVolume = decimal.NewFromInt(99)
	reg.Upsert(r)

	_, err := Select(reg, decimal.NewFromInt(50), PriorityBalanced, now)
	require.ErrorIs(err, ErrNoRailAvailable)
}

func TestAllHealthyWithin(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	reg := NewRegistry()
	reg.Upsert(healthyRail("A", 200*time.Millisecond, decimal.NewFromFloat(1), now))
	require.True(reg.AllHealthyWithin(30*time.Second, now))

	reg.Upsert(healthyRail("B", 200*time.Millisecond, decimal.NewFromFloat(1), now.Add(-time.Minute)))
	require.False(reg.AllHealthyWithin(30*time.Second, now))
}
