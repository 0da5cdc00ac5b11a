package balance

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct{ calls int }

func (f *fakeTransport) Transfer(_ context.Context, _ string, _, _ string, _ decimal.Decimal) (string, error) {
	f.calls++
	return "TXN-1", nil
}

func TestCreditDebit(t *testing.T) {
	require := require.New(t)
	l := NewLedger()
	l.Upsert(&Account{ID: "A", Status: AccountActive, Balance: decimal.NewFromInt(100)})

	require.NoError(l.Credit("A", decimal.NewFromInt(50)))
	a, err := l.Get("A")
	require.NoError(err)
	require.True(a.Balance.Equal(decimal.NewFromInt(150)))

	require.NoError(l.Debit("A", decimal.NewFromInt(25)))
	a, _ = l.Get("A")
	require.True(a.Balance.Equal(decimal.NewFromInt(125)))
}

func TestDebitInsufficientFunds(t *testing.T) {
	require := require.New(t)
	l := NewLedger()
	l.Upsert(&Account{ID: "A", Status: AccountActive, Balance: decimal.NewFromInt(10)})
	err := l.Debit("A", decimal.NewFromInt(100))
	require.ErrorIs(err, ErrInsufficientFunds)
}

func TestSnapshotRestore(t *testing.T) {
	require := require.New(t)
	l := NewLedger()
	l.Upsert(&Account{ID: "A", Status: AccountActive, Balance: decimal.NewFromInt(100)})

	token := l.Snapshot()
	require.NoError(l.Credit("A", decimal.NewFromInt(500)))
	a, _ := l.Get("A")
	require.True(a.Balance.Equal(decimal.NewFromInt(600)))

	require.NoError(l.Restore(token))
	a, _ = l.Get("A")
	require.True(a.Balance.Equal(decimal.NewFromInt(100)))
}

func TestFreeze(t *testing.T) {
	require := require.New(t)
	l := NewLedger()
	l.Upsert(&Account{ID: "A", Status: AccountActive})
	require.NoError(l.Freeze("A"))
	a, _ := l.Get("A")
	require.Equal(AccountFrozen, a.Status)
}

func TestTransferDelegatesToTransport(t *testing.T) {
	require := require.New(t)
	l := NewLedger()
	ft := &fakeTransport{}
	txnID, err := l.Transfer(context.Background(), ft, "ACH", "A", "B", decimal.NewFromInt(10))
	require.NoError(err)
	require.Equal("TXN-1", txnID)
	require.Equal(1, ft.calls)
}
