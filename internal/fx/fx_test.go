package fx

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	mid   decimal.Decimal
	calls int
	err   error
}

func (p *stubProvider) FetchMid(_ context.Context, _, _ string) (decimal.Decimal, error) {
	p.calls++
	if p.err != nil {
		return decimal.Zero, p.err
	}
	return p.mid, nil
}

func TestGetRateIdentityPairSkipsProvider(t *testing.T) {
	require := require.New(t)
	p := &stubProvider{mid: decimal.NewFromFloat(1.1)}
	s := NewService(p)

	rate, err := s.GetRate(context.Background(), "USD", "USD")
	require.NoError(err)
	require.True(rate.Mid.Equal(decimal.NewFromInt(1)))
	require.Equal(0, p.calls)
}

func TestGetRateCachesUntilStale(t *testing.T) {
	require := require.New(t)
	p := &stubProvider{mid: decimal.NewFromFloat(1.1)}
	s := NewService(p)
	now := time.Now()
	s.clock = func() time.Time { return now }

	_, err := s.GetRate(context.Background(), "USD", "EUR")
	require.NoError(err)
	_, err = s.GetRate(context.Background(), "USD", "EUR")
	require.NoError(err)
	require.Equal(1, p.calls)

	s.clock = func() time.Time { return now.Add(2 * FreshnessWindow) }
	_, err = s.GetRate(context.Background(), "USD", "EUR")
	require.NoError(err)
	require.Equal(2, p.calls)
}

func TestConvertAppliesSpread(t *testing.T) {
	require := require.New(t)
	p := &stubProvider{mid: decimal.NewFromInt(2)}
	s := NewService(p)

	out, rate, err := s.Convert(context.Background(), decimal.NewFromInt(100), "USD", "EUR")
	require.NoError(err)
	require.True(rate.Mid.Equal(decimal.NewFromInt(2)))
	want := decimal.NewFromInt(100).Mul(rate.Effective())
	require.True(out.Equal(want.Round(2)))
}

func TestPeekRateDoesNotTriggerFetch(t *testing.T) {
	require := require.New(t)
	p := &stubProvider{mid: decimal.NewFromFloat(1.1)}
	s := NewService(p)

	_, ok := s.PeekRate("USD", "EUR")
	require.False(ok)
	require.Equal(0, p.calls)

	_, err := s.GetRate(context.Background(), "USD", "EUR")
	require.NoError(err)

	cached, ok := s.PeekRate("USD", "EUR")
	require.True(ok)
	require.True(cached.Mid.Equal(decimal.NewFromFloat(1.1)))
	require.Equal(1, p.calls)
}
