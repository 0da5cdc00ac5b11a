package orchestrator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/instatrade/itn/internal/balance"
	"github.com/instatrade/itn/internal/fraud"
	"github.com/instatrade/itn/internal/fx"
	"github.com/instatrade/itn/internal/invariant"
	"github.com/instatrade/itn/internal/invoice"
	"github.com/instatrade/itn/internal/money"
	"github.com/instatrade/itn/internal/pricing"
	"github.com/instatrade/itn/internal/router"
	"github.com/instatrade/itn/internal/settlement"
	"github.com/instatrade/itn/pkg/log"
)

// buildCatalog registers every invariant named in spec.md §4.1 against the
// orchestrator's shared registry. Pre/Post/Rollback procedures close over
// the orchestrator's own collaborators rather than importing them into the
// invariant package, keeping that package domain-agnostic.
func (o *Orchestrator) buildCatalog() {
	r := o.registry

	r.MustRegister(&invariant.Invariant{
		ID: "001", Statement: "Invoice ids globally unique.", Type: invariant.TypeState, Criticality: invariant.Critical,
		Pre: func(ctx *invariant.Context) (bool, error) {
			inv := ctx.Values[keyInvoice].(*invoice.Invoice)
			_, err := o.invoices.Get(inv.ID)
			return err != nil, nil // must NOT already exist
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "002", Statement: "Invoice amount in [100, 10,000,000].", Type: invariant.TypeState, Criticality: invariant.Critical,
		Pre: func(ctx *invariant.Context) (bool, error) {
			inv := ctx.Values[keyInvoice].(*invoice.Invoice)
			return inv.Amount.GreaterThanOrEqual(decimal.NewFromInt(100)) &&
				inv.Amount.LessThanOrEqual(decimal.NewFromInt(10_000_000)), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "003", Statement: "Supplier and buyer accounts ACTIVE at transaction time.", Type: invariant.TypeState,
		Criticality: invariant.Critical, DecayWindow: 10 * time.Second,
		Pre: func(ctx *invariant.Context) (bool, error) {
			sup, _ := ctx.Get(keySupplierAccount)
			buy, _ := ctx.Get(keyBuyerAccount)
			supA, ok1 := sup.(*balance.Account)
			buyA, ok2 := buy.(*balance.Account)
			if !ok1 || !ok2 {
				return false, nil
			}
			return supA.Status == balance.AccountActive && buyA.Status == balance.AccountActive, nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "004", Statement: "Invoice content_hash unique across all invoices.", Type: invariant.TypeState,
		Criticality: invariant.Critical,
		Pre: func(ctx *invariant.Context) (bool, error) {
			inv := ctx.Values[keyInvoice].(*invoice.Invoice)
			return !o.invoices.HasContentHash(inv.ContentHash), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "005", Statement: "outstanding_balance + new <= credit_limit.", Type: invariant.TypeState,
		Criticality: invariant.Important, DecayWindow: time.Hour,
		Pre: func(ctx *invariant.Context) (bool, error) {
			buy, ok := ctx.Get(keyBuyerAccount)
			req, ok2 := ctx.Get(keyCreditRequest)
			if !ok || !ok2 {
				return true, nil // not applicable outside the acceptance flow
			}
			buyA := buy.(*balance.Account)
			newAmt := req.(decimal.Decimal)
			return buyA.OutstandingBalance.Add(newAmt).LessThanOrEqual(buyA.CreditLimit), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "006", Statement: "Exactly one Settlement per invoice.", Type: invariant.TypeState, Criticality: invariant.Critical,
		Pre: func(ctx *invariant.Context) (bool, error) {
			s := ctx.Values[keySettlement].(*settlement.Settlement)
			_, exists := o.settlements.Get(s.InvoiceID)
			return !exists, nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "007", Statement: "terms in {0,15,30,45,60,90}.", Type: invariant.TypeState, Criticality: invariant.Critical,
		Pre: func(ctx *invariant.Context) (bool, error) {
			inv := ctx.Values[keyInvoice].(*invoice.Invoice)
			return invoice.IsAllowedTerms(inv.Terms), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "101", Statement: "Only the fixed status-transition edges are allowed.", Type: invariant.TypeTransition,
		Criticality: invariant.Critical, DependsOn: []string{"105"},
		Pre: func(ctx *invariant.Context) (bool, error) {
			t, ok := ctx.Get(keyTransitionTo)
			if !ok {
				return true, nil
			}
			inv := ctx.Values[keyInvoice].(*invoice.Invoice)
			return invoice.CanTransition(inv.Status, t.(invoice.Status)), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "102", Statement: "All three settlement legs succeed or all revert.", Type: invariant.TypeTransition,
		Criticality: invariant.Critical,
		Post: func(ctx *invariant.Context, actionErr error) (bool, error) {
			if actionErr != nil {
				return false, nil
			}
			s := ctx.Values[keySettlement].(*settlement.Settlement)
			return s.SupplierCredit.TxnID != "" && s.BuyerDebit.TxnID != "" && s.CapitalAdvance.TxnID != "", nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "103", Statement: "No buyer acceptance without a valid (<5 min) pricing quote.", Type: invariant.TypeTransition,
		Criticality: invariant.Critical,
		Pre: func(ctx *invariant.Context) (bool, error) {
			q, ok := ctx.Get(keyQuote)
			if !ok {
				return false, nil
			}
			return q.(*pricing.Quote).Valid(o.clock()), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "104", Statement: "Only the invoice's buyer may accept.", Type: invariant.TypeTransition,
		Criticality: invariant.Critical,
		Pre: func(ctx *invariant.Context) (bool, error) {
			user, ok := ctx.Get(keyAuthenticatedUser)
			if !ok {
				return true, nil
			}
			inv := ctx.Values[keyInvoice].(*invoice.Invoice)
			return user.(string) == inv.BuyerID, nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "105", Statement: "Terminal states cannot mutate.", Type: invariant.TypeTransition, Criticality: invariant.Critical,
		Pre: func(ctx *invariant.Context) (bool, error) {
			inv := ctx.Values[keyInvoice].(*invoice.Invoice)
			return !inv.Status.IsTerminal(), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "201", Statement: "Settlement completes < 5s from acceptance.", Type: invariant.TypeTemporal,
		Criticality: invariant.Critical,
		Post: func(ctx *invariant.Context, actionErr error) (bool, error) {
			if actionErr != nil {
				return false, nil
			}
			s := ctx.Values[keySettlement].(*settlement.Settlement)
			return o.clock().Sub(s.AcceptanceTimestamp) < settlement.Deadline, nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "202", Statement: "Fraud score age < 24h and < 0.75 at acceptance.", Type: invariant.TypeTemporal,
		Criticality: invariant.Critical, DecayWindow: fraud.FreshnessWindow,
		Pre: func(ctx *invariant.Context) (bool, error) {
			sc, ok := ctx.Get(keyFraudScore)
			if !ok {
				return false, nil
			}
			score := sc.(*fraud.Score)
			return score.Fresh(o.clock()) && score.Total.LessThan(fraud.RejectThreshold), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "203", Statement: "PENDING invoices auto-expire at 48h.", Type: invariant.TypeTemporal,
		Criticality: invariant.Important,
		// Enforced by the background ExpireStalePending sweep, not a
		// per-mutation check; registered here so the catalog and the
		// 601/health audit can account for it.
		VerifyState: func(state map[string]any) bool { return true },
	})

	r.MustRegister(&invariant.Invariant{
		ID: "204", Statement: "FX rates < 60s at settlement.", Type: invariant.TypeTemporal, Criticality: invariant.Critical,
		Pre: func(ctx *invariant.Context) (bool, error) {
			rate, ok := ctx.Get(keyFXRate)
			if !ok {
				return true, nil // single-currency settlement, fx not applicable
			}
			return rate.(*fx.Rate).Fresh(o.clock()), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "205", Statement: "Credit limits re-fetched if > 1h stale.", Type: invariant.TypeTemporal, Criticality: invariant.Optional,
		DecayWindow: time.Hour,
		Pre: func(ctx *invariant.Context) (bool, error) { return true, nil },
	})

	r.MustRegister(&invariant.Invariant{
		ID: "206", Statement: "All rails health-checked within 30s and status UP.", Type: invariant.TypeTemporal,
		Criticality: invariant.Critical, DecayWindow: router.HealthCheckWindow,
		Pre: func(ctx *invariant.Context) (bool, error) {
			rl, ok := ctx.Get(keyRail)
			if !ok {
				return false, nil
			}
			rail := rl.(*router.Rail)
			return rail.Status == router.RailUp && o.clock().Sub(rail.LastHealthCheck) <= router.HealthCheckWindow, nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "207", Statement: "Capital bids rejected if past expires_at.", Type: invariant.TypeTemporal, Criticality: invariant.Important,
		Pre: func(ctx *invariant.Context) (bool, error) { return true, nil }, // enforced inside auction.FinalizeAuction itself
	})

	r.MustRegister(&invariant.Invariant{
		ID: "301", Statement: "Rolling 24h: >=70% of auctions have >=3 active bids.", Type: invariant.TypeProbabilistic,
		Criticality: invariant.Optional,
		Post: func(ctx *invariant.Context, actionErr error) (bool, error) {
			if actionErr != nil {
				return true, nil
			}
			rate, ok := ctx.Get(keyCompetitionRate)
			if !ok {
				return true, nil
			}
			return rate.(decimal.Decimal).GreaterThanOrEqual(decimal.NewFromFloat(0.70)), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "302", Statement: "Zero SETTLED invoices with score >= 0.75 in last 24h.", Type: invariant.TypeProbabilistic,
		Criticality: invariant.Critical,
		Post: func(ctx *invariant.Context, actionErr error) (bool, error) {
			if actionErr != nil {
				return true, nil
			}
			sc, ok := ctx.Get(keyFraudScore)
			if !ok {
				return true, nil
			}
			return sc.(*fraud.Score).Total.LessThan(fraud.RejectThreshold), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "303", Statement: "Rolling 7d settlement success rate >= 0.999.", Type: invariant.TypeProbabilistic,
		Criticality: invariant.Important,
		Post: func(ctx *invariant.Context, actionErr error) (bool, error) {
			passed, total := o.ledger.Totals()
			if total == 0 {
				return true, nil
			}
			rate := decimal.NewFromInt(int64(passed)).Div(decimal.NewFromInt(int64(total)))
			return rate.GreaterThanOrEqual(decimal.NewFromFloat(0.999)), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "401", Statement: "Neither party on sanctions list.", Type: invariant.TypeSecurity, Criticality: invariant.Critical,
		DecayWindow: 6 * time.Hour,
		Pre: func(ctx *invariant.Context) (bool, error) {
			sup, ok1 := ctx.Get(keySupplierAccount)
			buy, ok2 := ctx.Get(keyBuyerAccount)
			if !ok1 || !ok2 {
				return true, nil
			}
			sanctionedSupplier, _ := o.compliance.IsSanctioned(context.Background(), sup.(*balance.Account).ID)
			sanctionedBuyer, _ := o.compliance.IsSanctioned(context.Background(), buy.(*balance.Account).ID)
			if sanctionedSupplier || sanctionedBuyer {
				// A failed pre-check runs no rollback, so both parties are
				// frozen here.
				o.freezeAccount(sup.(*balance.Account).ID)
				o.freezeAccount(buy.(*balance.Account).ID)
				return false, nil
			}
			return true, nil
		},
		Rollback: func(ctx *invariant.Context, stateBefore map[string]any) error {
			sup, ok1 := ctx.Get(keySupplierAccount)
			buy, ok2 := ctx.Get(keyBuyerAccount)
			if ok1 {
				o.freezeAccount(sup.(*balance.Account).ID)
			}
			if ok2 {
				o.freezeAccount(buy.(*balance.Account).ID)
			}
			return nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "402", Statement: "Both parties KYC VERIFIED.", Type: invariant.TypeSecurity, Criticality: invariant.Critical,
		DecayWindow: 7 * 24 * time.Hour,
		Pre: func(ctx *invariant.Context) (bool, error) {
			sup, ok1 := ctx.Get(keySupplierAccount)
			buy, ok2 := ctx.Get(keyBuyerAccount)
			if !ok1 || !ok2 {
				return true, nil
			}
			return sup.(*balance.Account).KYC == balance.KYCVerified && buy.(*balance.Account).KYC == balance.KYCVerified, nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "403", Statement: "Buyer acceptance carries a verifiable signature over the invoice hash.", Type: invariant.TypeSecurity,
		Criticality: invariant.Critical,
		Pre: func(ctx *invariant.Context) (bool, error) {
			inv := ctx.Values[keyInvoice].(*invoice.Invoice)
			key, err := o.buyerKeys.Get(inv.BuyerID)
			if err != nil {
				return true, nil // buyer never registered a key: unsigned acceptance flow, not applicable
			}
			sigVal, ok := ctx.Get(keyAcceptanceSig)
			if !ok {
				return false, nil // signed-acceptance flow expected for this buyer but no signature supplied
			}
			return key.VerifyAcceptance(inv.ContentHash, sigVal.([]byte)), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "404", Statement: "<=100 invoices/hour per supplier.", Type: invariant.TypeSecurity, Criticality: invariant.Important,
		Pre: func(ctx *invariant.Context) (bool, error) {
			inv := ctx.Values[keyInvoice].(*invoice.Invoice)
			return o.invoices.InvoicesLastHour(inv.SupplierID, o.clock()) < 100, nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "501", Statement: "|sum(credits) - sum(debits)| <= 0.01 after every settlement.", Type: invariant.TypeFinancial,
		Criticality: invariant.Critical,
		Post: func(ctx *invariant.Context, actionErr error) (bool, error) {
			if actionErr != nil {
				return true, nil
			}
			s := ctx.Values[keySettlement].(*settlement.Settlement)
			// ActualCredits/ActualDebits are measured off the balance
			// ledger's real before/after state across all three legs, not
			// re-derived from the Leg records, so a genuine reconciliation
			// break is detectable here.
			return money.WithinTolerance(s.ActualCredits, s.ActualDebits), nil
		},
		Rollback: func(ctx *invariant.Context, stateBefore map[string]any) error {
			o.metrics.Rollbacks.Inc()
			return nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "502", Statement: "actual_charge - quoted_total_cost <= 0.01, auto-refund on overcharge.", Type: invariant.TypeFinancial,
		Criticality: invariant.Important,
		// The settlement-time rate (the auction winner's) can diverge from
		// the rate the buyer was quoted at acceptance; this check exists to
		// catch and correct that, not to block settlement. It always
		// returns true — returning false here would trigger the kernel's
		// full settlement rollback, which would undo the refund this check
		// just issued. Refund-and-proceed, not violate.
		Post: func(ctx *invariant.Context, actionErr error) (bool, error) {
			if actionErr != nil {
				return true, nil
			}
			charge, ok1 := ctx.Get(keyActualCharge)
			quoted, ok2 := ctx.Get(keyQuotedTotalCost)
			if !ok1 || !ok2 {
				return true, nil
			}
			actual := charge.(decimal.Decimal)
			quotedCost := quoted.(decimal.Decimal)
			overcharge := actual.Sub(quotedCost)
			if overcharge.GreaterThan(decimal.NewFromFloat(0.01)) {
				s := ctx.Values[keySettlement].(*settlement.Settlement)
				if err := o.balances.Credit(s.BuyerDebit.Account, overcharge); err != nil {
					o.log.Warn("502 overcharge refund failed",
						log.String("invoice_id", s.InvoiceID), log.Err(err))
				}
			}
			return true, nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "503", Statement: "Provider available_liquidity >= bid_capacity at bid time.", Type: invariant.TypeFinancial,
		Criticality: invariant.Critical, DecayWindow: 30 * time.Second,
		Pre: func(ctx *invariant.Context) (bool, error) { return true, nil }, // enforced inside auction.Registry.ReserveLiquidity
	})

	r.MustRegister(&invariant.Invariant{
		ID: "601", Statement: "Ledger entry signature matches recomputation.", Type: invariant.TypeDataIntegrity,
		Criticality: invariant.Critical,
		Post: func(ctx *invariant.Context, actionErr error) (bool, error) {
			return o.ledger.VerifyChainIntegrity(), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "602", Statement: "Sum of line_item.amount = invoice.amount (tolerance 0.01).", Type: invariant.TypeDataIntegrity,
		Criticality: invariant.Critical,
		Pre: func(ctx *invariant.Context) (bool, error) {
			inv := ctx.Values[keyInvoice].(*invoice.Invoice)
			if len(inv.LineItems) == 0 {
				return true, nil
			}
			return money.WithinTolerance(inv.LineItemTotal(), inv.Amount), nil
		},
	})

	r.MustRegister(&invariant.Invariant{
		ID: "603", Statement: "Pricing quote age < 5 min at acceptance.", Type: invariant.TypeDataIntegrity,
		Criticality: invariant.Critical, DependsOn: []string{"103"},
		Pre: func(ctx *invariant.Context) (bool, error) {
			q, ok := ctx.Get(keyQuote)
			if !ok {
				return false, nil
			}
			return o.clock().Sub(q.(*pricing.Quote).CreatedAt) < pricing.ValidityWindow, nil
		},
	})
}
