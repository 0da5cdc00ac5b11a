package auction

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/instatrade/itn/pkg/log"
)

func zeroJitter() decimal.Decimal { return decimal.Zero }

func TestFinalizeAuctionPicksLowestRate(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry()
	reg.Register(&Provider{
		ID: "P-LOW", AvailableLiquidity: decimal.NewFromInt(100000),
		MinSize: decimal.NewFromInt(100), MaxSize: decimal.NewFromInt(1000000),
		PreferredTerms: map[int]bool{30: true}, RiskAppetite: "LOW",
	})
	reg.Register(&Provider{
		ID: "P-HIGH", AvailableLiquidity: decimal.NewFromInt(100000),
		MinSize: decimal.NewFromInt(100), MaxSize: decimal.NewFromInt(1000000),
		PreferredTerms: map[int]bool{30: true}, RiskAppetite: "HIGH",
	})

	e := NewEngine(reg, zeroJitter, log.NoOp())
	a, err := e.StartAuction(context.Background(), "INV-1", decimal.NewFromInt(50000), 30)
	require.NoError(err)
	require.Len(a.Bids, 2)

	a, err = e.FinalizeAuction(a.ID)
	require.NoError(err)
	require.NotNil(a.Winner)
	require.Equal("P-LOW", a.Winner.ProviderID)
	require.True(a.Winner.DiscountRate.Equal(riskBaseRate["LOW"]))
}

func TestFinalizeAuctionFallbackWithNoBids(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry()
	e := NewEngine(reg, zeroJitter, log.NoOp())

	a, err := e.StartAuction(context.Background(), "INV-2", decimal.NewFromInt(5000), 30)
	require.NoError(err)
	require.Empty(a.Bids)

	a, err = e.FinalizeAuction(a.ID)
	require.NoError(err)
	require.Equal("SYSTEM", a.Winner.ProviderID)
	require.True(a.Winner.DiscountRate.Equal(FallbackRate))
	require.True(a.LowLiquidity)
}

func TestReserveLiquidityInsufficientFunds(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry()
	reg.Register(&Provider{ID: "P-1", AvailableLiquidity: decimal.NewFromInt(100)})
	err := reg.ReserveLiquidity("P-1", decimal.NewFromInt(500), time.Now())
	require.Error(err)
}

func TestCompetitionRateTracksThreeOrMoreBids(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry()
	for _, id := range []string{"A", "B", "C"} {
		reg.Register(&Provider{
			ID: id, AvailableLiquidity: decimal.NewFromInt(100000),
			MinSize: decimal.NewFromInt(100), MaxSize: decimal.NewFromInt(1000000),
			PreferredTerms: map[int]bool{30: true}, RiskAppetite: "MEDIUM",
		})
	}
	e := NewEngine(reg, zeroJitter, log.NoOp())
	a, err := e.StartAuction(context.Background(), "INV-3", decimal.NewFromInt(1000), 30)
	require.NoError(err)
	_, err = e.FinalizeAuction(a.ID)
	require.NoError(err)
	require.True(e.CompetitionRate().Equal(decimal.NewFromInt(1)))
}
