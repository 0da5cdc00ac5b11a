package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/instatrade/itn/internal/auction"
	"github.com/instatrade/itn/internal/balance"
	"github.com/instatrade/itn/internal/external"
	"github.com/instatrade/itn/internal/invoice"
	"github.com/instatrade/itn/internal/router"
)

func zeroJitter() decimal.Decimal { return decimal.Zero }

func newTestOrchestrator(t *testing.T) *Orchestrator {
	compliance := external.NewInMemoryCompliance()
	fraudHist := external.NewInMemoryFraudHistory()
	fx := external.NewFXProvider()

	o := NewOrchestrator(Config{
		Compliance:    compliance,
		FraudHist:     fraudHist,
		FXProvider:    fx,
		AuctionJitter: zeroJitter,
		Transport:     external.NewSimulatedTransport(nil),
	})

	o.RegisterAccount(&balance.Account{
		ID: "SUP-1", Status: balance.AccountActive, KYC: balance.KYCVerified, Balance: decimal.Zero,
	})
	o.RegisterAccount(&balance.Account{
		ID: "BUY-1", Status: balance.AccountActive, KYC: balance.KYCVerified,
		Balance: decimal.NewFromInt(1000000), CreditLimit: decimal.NewFromInt(1000000),
	})
	o.RegisterRail(&router.Rail{
		Name: "ACH", Status: router.RailUp, LastHealthCheck: time.Now(),
		SuccessRate: decimal.NewFromFloat(0.99), DailyLimit: decimal.NewFromInt(10000000),
	})
	o.RegisterProvider(&auction.Provider{
		ID: "CAP-1", AvailableLiquidity: decimal.NewFromInt(1000000),
		MinSize: decimal.NewFromInt(100), MaxSize: decimal.NewFromInt(1000000),
		PreferredTerms: map[int]bool{30: true}, RiskAppetite: "LOW",
	})
	return o
}

func sampleRequest() CreateInvoiceRequest {
	return CreateInvoiceRequest{
		SupplierID: "SUP-1",
		BuyerID:    "BUY-1",
		Currency:   "USD",
		Terms:      30,
		LineItems: []invoice.LineItem{
			{Description: "widgets", Quantity: decimal.NewFromInt(100), UnitPrice: decimal.NewFromInt(500)},
		},
	}
}

func TestCreateInvoiceAssignsIDAndHash(t *testing.T) {
	require := require.New(t)
	o := newTestOrchestrator(t)

	inv, err := o.CreateInvoice(sampleRequest())
	require.NoError(err)
	require.NotEmpty(inv.ID)
	require.NotEmpty(inv.ContentHash)
	require.True(inv.Amount.Equal(decimal.NewFromInt(50000)))
	require.Equal(invoice.StatusPending, inv.Status)
}

func TestCreateInvoiceRejectsDuplicateContent(t *testing.T) {
	require := require.New(t)
	o := newTestOrchestrator(t)

	_, err := o.CreateInvoice(sampleRequest())
	require.NoError(err)

	_, err = o.CreateInvoice(sampleRequest())
	require.Error(err)
}

func TestAcceptInvoiceTransitionsToAccepted(t *testing.T) {
	require := require.New(t)
	o := newTestOrchestrator(t)
	o.fraudHist.(*external.InMemoryFraudHistory).SetAverageAmount("SUP-1", decimal.NewFromInt(50000))
	o.fraudHist.(*external.InMemoryFraudHistory).RecordRelationship("SUP-1", "BUY-1")

	inv, err := o.CreateInvoice(sampleRequest())
	require.NoError(err)

	accepted, err := o.AcceptInvoice(context.Background(), inv.ID, "BUY-1", nil)
	require.NoError(err)
	require.Equal(invoice.StatusAccepted, accepted.Status)
}

func TestAcceptInvoiceRejectsWrongUser(t *testing.T) {
	require := require.New(t)
	o := newTestOrchestrator(t)
	o.fraudHist.(*external.InMemoryFraudHistory).SetAverageAmount("SUP-1", decimal.NewFromInt(50000))

	inv, err := o.CreateInvoice(sampleRequest())
	require.NoError(err)

	_, err = o.AcceptInvoice(context.Background(), inv.ID, "INTRUDER", nil)
	require.Error(err)
}

func TestAcceptInvoiceRejectsSanctionedBuyer(t *testing.T) {
	require := require.New(t)
	o := newTestOrchestrator(t)
	o.compliance.(*external.InMemoryCompliance).MarkSanctioned("BUY-1")
	o.fraudHist.(*external.InMemoryFraudHistory).SetAverageAmount("SUP-1", decimal.NewFromInt(50000))

	inv, err := o.CreateInvoice(sampleRequest())
	require.NoError(err)

	_, err = o.AcceptInvoice(context.Background(), inv.ID, "BUY-1", nil)
	require.Error(err)

	sup, _ := o.balances.Get("BUY-1")
	require.Equal(balance.AccountFrozen, sup.Status)
}

func TestSnapshotReportsHealthyLedger(t *testing.T) {
	require := require.New(t)
	o := newTestOrchestrator(t)
	_, err := o.CreateInvoice(sampleRequest())
	require.NoError(err)

	snap := o.Snapshot()
	require.True(snap.LedgerIntegrityOK)
	require.True(snap.LedgerTotal > 0)
}
