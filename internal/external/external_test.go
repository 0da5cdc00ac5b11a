package external

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestInMemoryComplianceFlags(t *testing.T) {
	require := require.New(t)
	c := NewInMemoryCompliance()

	sanctioned, err := c.IsSanctioned(context.Background(), "BUY-1")
	require.NoError(err)
	require.False(sanctioned)

	c.MarkSanctioned("BUY-1")
	c.MarkKYCVerified("BUY-1")

	sanctioned, err = c.IsSanctioned(context.Background(), "BUY-1")
	require.NoError(err)
	require.True(sanctioned)

	verified, err := c.KYCVerified(context.Background(), "BUY-1")
	require.NoError(err)
	require.True(verified)
}

func TestInMemoryFraudHistoryTracksRelationshipsAndAverages(t *testing.T) {
	require := require.New(t)
	f := NewInMemoryFraudHistory()

	f.RecordRelationship("SUP-1", "BUY-1")
	f.RecordRelationship("SUP-1", "BUY-1")
	f.SetAverageAmount("SUP-1", decimal.NewFromInt(5000))
	f.MarkKnownPattern("fp-1")

	count, err := f.RelationshipInvoiceCount(context.Background(), "SUP-1", "BUY-1")
	require.NoError(err)
	require.Equal(2, count)

	avg, err := f.SupplierAverageAmount(context.Background(), "SUP-1")
	require.NoError(err)
	require.True(avg.Equal(decimal.NewFromInt(5000)))

	patterns, err := f.KnownFraudPatterns(context.Background())
	require.NoError(err)
	require.True(patterns["fp-1"])
}

func TestFXProviderFetchMidRequiresSeededRate(t *testing.T) {
	require := require.New(t)
	p := NewFXProvider()

	_, err := p.FetchMid(context.Background(), "USD", "EUR")
	require.Error(err)

	p.SetRate("USD", "EUR", decimal.NewFromFloat(1.1))
	mid, err := p.FetchMid(context.Background(), "USD", "EUR")
	require.NoError(err)
	require.True(mid.Equal(decimal.NewFromFloat(1.1)))
}

func TestSimulatedTransportMintsDeterministicTxnID(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	tr := NewSimulatedTransport(func() time.Time { return now })

	id, err := tr.Transfer(context.Background(), "ACH", "A", "B", decimal.NewFromInt(100))
	require.NoError(err)
	require.Equal("TXN-ACH-000001", id)

	id2, err := tr.Transfer(context.Background(), "ACH", "A", "B", decimal.NewFromInt(100))
	require.NoError(err)
	require.Equal("TXN-ACH-000002", id2)
}

func TestSimulatedTransportRejectsWhenLatencyExceedsDeadline(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	tr := NewSimulatedTransport(func() time.Time { return now })
	tr.SetLatency("SLOW", 10*time.Second)

	ctx, cancel := context.WithDeadline(context.Background(), now.Add(time.Second))
	defer cancel()

	_, err := tr.Transfer(ctx, "SLOW", "A", "B", decimal.NewFromInt(100))
	require.Error(err)
}
