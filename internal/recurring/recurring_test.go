package recurring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerateMintsChildInvoiceAndAdvancesCounter(t *testing.T) {
	require := require.New(t)
	start := time.Now().Add(-time.Hour)
	g := NewGenerator(fixedClock(start.Add(time.Hour)))
	g.Register(&Template{
		ID: "TPL-1", SupplierID: "SUP-1", BuyerID: "BUY-1",
		Amount: decimal.NewFromInt(1000), Currency: "USD", Terms: 30,
		Frequency: FrequencyMonthly, Status: TemplateActive, StartDate: start,
	})

	inv, err := g.Generate("TPL-1")
	require.NoError(err)
	require.Equal("TPL-1-OCC-001", inv.ID)
	require.True(inv.Amount.Equal(decimal.NewFromInt(1000)))

	got, err := g.Get("TPL-1")
	require.NoError(err)
	require.Equal(1, got.OccurrenceCount)
}

func TestGenerateRejectsNotYetDue(t *testing.T) {
	require := require.New(t)
	start := time.Now().Add(time.Hour)
	g := NewGenerator(fixedClock(time.Now()))
	g.Register(&Template{
		ID: "TPL-1", SupplierID: "SUP-1", BuyerID: "BUY-1",
		Amount: decimal.NewFromInt(1000), Currency: "USD", Terms: 30,
		Frequency: FrequencyMonthly, Status: TemplateActive, StartDate: start,
	})

	_, err := g.Generate("TPL-1")
	require.ErrorIs(err, ErrTemplateNotDue)
}

func TestGenerateCompletesTemplateAtMaxOccurrences(t *testing.T) {
	require := require.New(t)
	start := time.Now().Add(-time.Hour)
	clockT := start
	g := NewGenerator(func() time.Time { return clockT })
	g.Register(&Template{
		ID: "TPL-1", SupplierID: "SUP-1", BuyerID: "BUY-1",
		Amount: decimal.NewFromInt(1000), Currency: "USD", Terms: 30,
		Frequency: FrequencyWeekly, MaxOccurrences: 1, Status: TemplateActive, StartDate: start,
	})

	_, err := g.Generate("TPL-1")
	require.NoError(err)

	got, err := g.Get("TPL-1")
	require.NoError(err)
	require.Equal(TemplateCompleted, got.Status)

	clockT = start.AddDate(0, 0, 14)
	_, err = g.Generate("TPL-1")
	require.ErrorIs(err, ErrTemplateExhausted)
}

func TestPauseStopsGeneration(t *testing.T) {
	require := require.New(t)
	start := time.Now().Add(-time.Hour)
	g := NewGenerator(fixedClock(start.Add(time.Hour)))
	g.Register(&Template{
		ID: "TPL-1", SupplierID: "SUP-1", BuyerID: "BUY-1",
		Amount: decimal.NewFromInt(1000), Currency: "USD", Terms: 30,
		Frequency: FrequencyMonthly, Status: TemplateActive, StartDate: start,
	})

	require.NoError(g.Pause("TPL-1"))
	_, err := g.Generate("TPL-1")
	require.ErrorIs(err, ErrTemplateNotDue)

	require.NoError(g.Resume("TPL-1"))
	_, err = g.Generate("TPL-1")
	require.NoError(err)
}

func TestDueListsOnlyActiveDueTemplates(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	g := NewGenerator(fixedClock(now))
	g.Register(&Template{
		ID: "DUE", SupplierID: "SUP-1", BuyerID: "BUY-1", Frequency: FrequencyWeekly,
		Status: TemplateActive, StartDate: now.Add(-time.Minute),
	})
	g.Register(&Template{
		ID: "NOT-DUE", SupplierID: "SUP-1", BuyerID: "BUY-1", Frequency: FrequencyWeekly,
		Status: TemplateActive, StartDate: now.Add(time.Hour),
	})
	g.Register(&Template{
		ID: "PAUSED", SupplierID: "SUP-1", BuyerID: "BUY-1", Frequency: FrequencyWeekly,
		Status: TemplatePaused, StartDate: now.Add(-time.Minute),
	})

	due := g.Due()
	require.Len(due, 1)
	require.Equal("DUE", due[0].ID)
}
