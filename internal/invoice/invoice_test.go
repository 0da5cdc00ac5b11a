package invoice

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func sampleInvoice() *Invoice {
	inv := &Invoice{
		ID:         "INV-1",
		SupplierID: "SUP-1",
		BuyerID:    "BUY-1",
		Currency:   "USD",
		Terms:      30,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
		LineItems: []LineItem{
			{Description: "widgets", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(100)},
		},
	}
	inv.Amount = inv.LineItemTotal()
	inv.ContentHash = ContentHash(inv)
	return inv
}

func TestContentHashStableAndSensitive(t *testing.T) {
	require := require.New(t)
	a := sampleInvoice()
	b := sampleInvoice()
	require.Equal(ContentHash(a), ContentHash(b))

	b.Amount = b.Amount.Add(decimal.NewFromInt(1))
	require.NotEqual(ContentHash(a), ContentHash(b))
}

func TestStoreCreateRejectsDuplicateHash(t *testing.T) {
	require := require.New(t)
	s := NewStore()
	inv := sampleInvoice()
	require.NoError(s.Create(inv))

	dup := sampleInvoice()
	dup.ID = "INV-2"
	err := s.Create(dup)
	require.ErrorIs(err, ErrDuplicateHash)
}

func TestStoreInvoicesLastHour(t *testing.T) {
	require := require.New(t)
	s := NewStore()
	now := time.Now()
	inv := sampleInvoice()
	inv.CreatedAt = now.Add(-10 * time.Minute)
	require.NoError(s.Create(inv))

	require.Equal(1, s.InvoicesLastHour("SUP-1", now))
	require.Equal(0, s.InvoicesLastHour("SUP-1", now.Add(2*time.Hour)))
}

func TestPendingOlderThan(t *testing.T) {
	require := require.New(t)
	s := NewStore()
	now := time.Now()
	inv := sampleInvoice()
	inv.CreatedAt = now.Add(-49 * time.Hour)
	require.NoError(s.Create(inv))

	stale := s.PendingOlderThan(now.Add(-48 * time.Hour))
	require.Len(stale, 1)
	require.Equal("INV-1", stale[0].ID)
}

func TestTransitionRules(t *testing.T) {
	require := require.New(t)
	inv := sampleInvoice()

	require.NoError(Transition(inv, StatusAccepted))
	require.Equal(StatusAccepted, inv.Status)

	err := Transition(inv, StatusPending)
	require.Error(err)

	require.NoError(Transition(inv, StatusSettled))
	err = Transition(inv, StatusFailed)
	require.ErrorIs(err, ErrTerminalState)
}
