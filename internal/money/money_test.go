package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRound(t *testing.T) {
	require := require.New(t)
	up, err := decimal.NewFromString("1.005")
	require.NoError(err)
	require.True(Round(up).Equal(decimal.NewFromFloat(1.01)))

	down, err := decimal.NewFromString("1.004")
	require.NoError(err)
	require.True(Round(down).Equal(decimal.NewFromFloat(1.00)))
}

func TestWithinTolerance(t *testing.T) {
	require := require.New(t)
	a := decimal.NewFromFloat(100.00)
	require.True(WithinTolerance(a, decimal.NewFromFloat(100.01)))
	require.False(WithinTolerance(a, decimal.NewFromFloat(100.02)))
}

func TestNew(t *testing.T) {
	require := require.New(t)
	require.True(New(10.5).Equal(decimal.NewFromFloat(10.50)))
}
