// Package orchestrator implements the Invoice-Financing Orchestrator (C15):
// it wires the Invoice Store, Enforcement Kernel, Pricing, FX, Fraud,
// Capital Auction, Smart Router, Balance Ledger, and Settlement Engine into
// the three end-to-end flows spec.md §4.15 names (create, accept, settle),
// builds the fixed invariant catalog those flows run under, and reports the
// aggregate health snapshot. Grounded on the teacher's cmd/api/main.go
// wiring of MockStorage/MockAnalytics/MockPrivacy into the HTTP handlers,
// narrowed here to an in-process composition root with no HTTP concerns.
package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/instatrade/itn/internal/auction"
	"github.com/instatrade/itn/internal/balance"
	"github.com/instatrade/itn/internal/external"
	"github.com/instatrade/itn/internal/fraud"
	"github.com/instatrade/itn/internal/fx"
	"github.com/instatrade/itn/internal/invariant"
	"github.com/instatrade/itn/internal/invoice"
	"github.com/instatrade/itn/internal/ledger"
	"github.com/instatrade/itn/internal/pricing"
	"github.com/instatrade/itn/internal/router"
	"github.com/instatrade/itn/internal/settlement"
	"github.com/instatrade/itn/pkg/log"
	"github.com/instatrade/itn/pkg/metric"
	"github.com/instatrade/itn/pkg/seal"
)

// BuyerKeyStore tracks the ECDSA public key each buyer has registered for
// acceptance-signature verification (invariant 403).
type BuyerKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*seal.BuyerKey
}

// NewBuyerKeyStore creates an empty key store.
func NewBuyerKeyStore() *BuyerKeyStore {
	return &BuyerKeyStore{keys: make(map[string]*seal.BuyerKey)}
}

// Register binds a buyer id to its public key.
func (s *BuyerKeyStore) Register(buyerID string, key *seal.BuyerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[buyerID] = key
}

// Get returns the registered key for buyerID.
func (s *BuyerKeyStore) Get(buyerID string) (*seal.BuyerKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[buyerID]
	if !ok {
		return nil, fmt.Errorf("orchestrator: no acceptance key registered for buyer %s", buyerID)
	}
	return k, nil
}

// Orchestrator is the composition root tying every component together under
// the enforcement kernel.
type Orchestrator struct {
	invoices    *invoice.Store
	balances    *balance.Ledger
	pricing     *pricing.Service
	fx          *fx.Service
	auctions    *auction.Engine
	providers   *auction.Registry
	rails       *router.Registry
	settlements *settlement.Engine
	compliance  external.ComplianceBackend
	fraudHist   external.FraudHistoryBackend
	buyerKeys   *BuyerKeyStore

	registry *invariant.Registry
	kernel   *invariant.Kernel
	ledger   *ledger.Ledger
	metrics  *metric.Metrics
	log      log.Logger

	clock func() time.Time
}

// Config bundles the collaborators NewOrchestrator wires together.
type Config struct {
	Secret      *seal.Secret
	Compliance  external.ComplianceBackend
	FraudHist   external.FraudHistoryBackend
	FXProvider  fx.Provider
	AuctionJitter auction.JitterFunc
	Transport   balance.Transport
	Metrics     *metric.Metrics
	Logger      log.Logger
	Clock       func() time.Time
}

// NewOrchestrator constructs every internal component and registers the
// fixed invariant catalog.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoOp()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metric.New()
	}

	led := ledger.New(cfg.Secret)
	registry := invariant.NewRegistry()
	kernel := invariant.NewKernel(registry, led, cfg.Logger, cfg.Metrics)

	providers := auction.NewRegistry()
	rails := router.NewRegistry()
	balances := balance.NewLedger()

	o := &Orchestrator{
		invoices:    invoice.NewStore(),
		balances:    balances,
		pricing:     pricing.NewService(),
		fx:          fx.NewService(cfg.FXProvider),
		auctions:    auction.NewEngine(providers, cfg.AuctionJitter, cfg.Logger),
		providers:   providers,
		rails:       rails,
		settlements: settlement.NewEngine(balances, rails, cfg.Transport, kernel, cfg.Metrics, cfg.Logger),
		compliance:  cfg.Compliance,
		fraudHist:   cfg.FraudHist,
		buyerKeys:   NewBuyerKeyStore(),
		registry:    registry,
		kernel:      kernel,
		ledger:      led,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
		clock:       cfg.Clock,
	}
	o.buildCatalog()
	return o
}

// RegisterAccount adds a supplier, buyer, or capital-provider account.
func (o *Orchestrator) RegisterAccount(a *balance.Account) { o.balances.Upsert(a) }

// RegisterRail adds a settlement rail to the smart router.
func (o *Orchestrator) RegisterRail(r *router.Rail) { o.rails.Upsert(r) }

// RegisterProvider adds a capital provider to the auction pool.
func (o *Orchestrator) RegisterProvider(p *auction.Provider) { o.providers.Register(p) }

// RegisterBuyerKey binds a buyer id to its acceptance public key.
func (o *Orchestrator) RegisterBuyerKey(buyerID string, key *seal.BuyerKey) {
	o.buyerKeys.Register(buyerID, key)
}

func (o *Orchestrator) freezeAccount(acctID string) {
	if err := o.balances.Freeze(acctID); err != nil && o.log != nil {
		o.log.Warn("freeze failed", log.String("account_id", acctID), log.Err(err))
	}
}

// CreateInvoiceRequest is the supplier-facing payload for invoice creation.
type CreateInvoiceRequest struct {
	SupplierID string
	BuyerID    string
	Currency   string
	Terms      int
	LineItems  []invoice.LineItem
}

// CreateInvoice runs invariant set {001,002,003,004,007,404,602} around
// minting a new invoice.
func (o *Orchestrator) CreateInvoice(req CreateInvoiceRequest) (*invoice.Invoice, error) {
	amount := decimal.Zero
	for _, li := range req.LineItems {
		amount = amount.Add(li.Amount())
	}

	inv := &invoice.Invoice{
		ID:         fmt.Sprintf("INV-%s", uuid.NewString()),
		SupplierID: req.SupplierID,
		BuyerID:    req.BuyerID,
		Amount:     amount,
		Currency:   req.Currency,
		LineItems:  req.LineItems,
		Terms:      req.Terms,
		Status:     invoice.StatusPending,
		CreatedAt:  o.clock(),
	}
	inv.ContentHash = invoice.ContentHash(inv)

	supplier, err := o.balances.Get(req.SupplierID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: supplier account: %w", err)
	}
	buyer, err := o.balances.Get(req.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: buyer account: %w", err)
	}

	lock := o.invoices.Lock(inv.ID)
	lock.Lock()
	defer lock.Unlock()

	kctx := invariant.NewContext()
	kctx.Set(keyInvoice, inv)
	kctx.Set(keySupplierAccount, supplier)
	kctx.Set(keyBuyerAccount, buyer)

	err = o.kernel.Enforce(kctx, []string{"001", "002", "003", "004", "007", "404", "602"}, func(*invariant.Context) error {
		return o.invoices.Create(inv)
	})
	if err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.InvoicesCreated.Inc()
		f, _ := amount.Float64()
		o.metrics.InvoiceAmount.Observe(f)
	}
	return inv, nil
}

// EvaluateFraud scores an invoice using its supplier's history, carried as
// the first step of the accept flow (invariant 202's freshness contract).
func (o *Orchestrator) EvaluateFraud(ctx context.Context, inv *invoice.Invoice, isAcceptance bool, acceptedWithinSeconds float64) (fraud.Score, error) {
	avg, err := o.fraudHist.SupplierAverageAmount(ctx, inv.SupplierID)
	if err != nil {
		return fraud.Score{}, err
	}
	relCount, err := o.fraudHist.RelationshipInvoiceCount(ctx, inv.SupplierID, inv.BuyerID)
	if err != nil {
		return fraud.Score{}, err
	}
	patterns, err := o.fraudHist.KnownFraudPatterns(ctx)
	if err != nil {
		return fraud.Score{}, err
	}

	in := fraud.Input{
		SupplierID:               inv.SupplierID,
		BuyerID:                  inv.BuyerID,
		Amount:                   inv.Amount,
		LineItemCount:            len(inv.LineItems),
		CreatedAt:                o.clock(),
		InvoicesLastHour:         o.invoices.InvoicesLastHour(inv.SupplierID, o.clock()),
		InvoicesLastDay:          o.invoices.InvoicesLastDay(inv.SupplierID, o.clock()),
		SupplierAvgAmount:        avg,
		RelationshipInvoiceCount: relCount,
		KnownFraudPatterns:       patterns,
		IsAcceptanceEvaluation:   isAcceptance,
		AcceptedWithinSeconds:    acceptedWithinSeconds,
	}
	score := fraud.Evaluate(inv.ID, in)
	if o.metrics != nil {
		f, _ := score.Total.Float64()
		o.metrics.FraudScore.Observe(f)
	}
	return score, nil
}

// AcceptInvoice runs the buyer-acceptance workflow: quote validity (103,
// 603), buyer authorization (104), fraud freshness (202, 302), account/KYC/
// sanctions checks (003, 401, 402), the acceptance signature (403), the
// credit limit when the target is ACCEPTED (005), and the state transition
// itself (101, 105), all under one kernel.Enforce call.
func (o *Orchestrator) AcceptInvoice(ctx context.Context, invoiceID, authenticatedUser string, sig []byte) (*invoice.Invoice, error) {
	lock := o.invoices.Lock(invoiceID)
	lock.Lock()
	defer lock.Unlock()

	inv, err := o.invoices.Get(invoiceID)
	if err != nil {
		return nil, err
	}
	quote, ok := o.pricing.GetValidQuote(invoiceID)
	if !ok {
		quote, err = o.pricing.IssueQuote(invoiceID, inv.Amount, inv.Terms)
		if err != nil {
			return nil, err
		}
	}

	score, err := o.EvaluateFraud(ctx, inv, true, o.clock().Sub(inv.CreatedAt).Seconds())
	if err != nil {
		return nil, err
	}

	supplier, err := o.balances.Get(inv.SupplierID)
	if err != nil {
		return nil, err
	}
	buyer, err := o.balances.Get(inv.BuyerID)
	if err != nil {
		return nil, err
	}

	kctx := invariant.NewContext()
	kctx.Set(keyInvoice, inv)
	kctx.Set(keyQuote, quote)
	kctx.Set(keyFraudScore, &score)
	kctx.Set(keySupplierAccount, supplier)
	kctx.Set(keyBuyerAccount, buyer)
	kctx.Set(keyAuthenticatedUser, authenticatedUser)
	kctx.Set(keyCreditRequest, quote.TotalCost)
	if sig != nil {
		kctx.Set(keyAcceptanceSig, sig)
	}

	target := invoice.StatusAccepted
	if score.Action == fraud.ActionReview {
		target = invoice.StatusFraudReview
	} else if score.Action == fraud.ActionReject {
		target = invoice.StatusRejected
	}
	kctx.Set(keyTransitionTo, target)

	invariantIDs := []string{"003", "101", "103", "104", "105", "202", "302", "401", "402", "403", "603"}
	if target == invoice.StatusAccepted {
		invariantIDs = append(invariantIDs, "005")
	}

	err = o.kernel.Enforce(kctx, invariantIDs, func(*invariant.Context) error {
		if err := invoice.Transition(inv, target); err != nil {
			return err
		}
		return o.invoices.Update(inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// SettleInvoice runs the capital auction, then the three-leg settlement, for
// an ACCEPTED invoice.
func (o *Orchestrator) SettleInvoice(ctx context.Context, invoiceID string, priority router.Priority) (*settlement.Settlement, error) {
	lock := o.invoices.Lock(invoiceID)
	lock.Lock()
	defer lock.Unlock()

	inv, err := o.invoices.Get(invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != invoice.StatusAccepted {
		return nil, fmt.Errorf("orchestrator: invoice %s is not ACCEPTED", invoiceID)
	}

	a, err := o.auctions.StartAuction(ctx, invoiceID, inv.Amount, inv.Terms)
	if err != nil {
		return nil, err
	}
	waitDeadline := a.EndsAt
	if time.Until(waitDeadline) > 0 {
		timer := time.NewTimer(time.Until(waitDeadline))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	a, err = o.auctions.FinalizeAuction(a.ID)
	if err != nil {
		return nil, err
	}

	audit := settlement.AuditInputs{
		CompetitionRate:    o.auctions.CompetitionRate(),
		HasCompetitionRate: true,
	}
	if quote, ok := o.pricing.GetValidQuote(invoiceID); ok {
		audit.QuotedTotalCost = quote.TotalCost
		audit.HasQuotedTotalCost = true
	}

	s, err := o.settlements.Execute(ctx, invoiceID, inv.SupplierID, inv.BuyerID, a.Winner.ProviderID, inv.Amount, a.Winner.DiscountRate, priority, audit)
	if err != nil {
		return nil, err
	}

	inv.Status = invoice.StatusSettled
	if err := o.invoices.Update(inv); err != nil {
		return nil, err
	}
	if o.fraudHist != nil {
		if r, ok := o.fraudHist.(*external.InMemoryFraudHistory); ok {
			r.RecordRelationship(inv.SupplierID, inv.BuyerID)
		}
	}
	return s, nil
}

// ExpireStalePending transitions every PENDING invoice older than 48h to
// EXPIRED (invariant 203's background sweep).
func (o *Orchestrator) ExpireStalePending() int {
	cutoff := o.clock().Add(-48 * time.Hour)
	n := 0
	for _, inv := range o.invoices.PendingOlderThan(cutoff) {
		lock := o.invoices.Lock(inv.ID)
		lock.Lock()
		if err := invoice.Transition(inv, invoice.StatusExpired); err == nil {
			if err := o.invoices.Update(inv); err == nil {
				n++
			}
		}
		lock.Unlock()
	}
	return n
}

// HealthSnapshot is the aggregate system-health report spec.md §4.15 names.
type HealthSnapshot struct {
	LedgerPassed, LedgerTotal int
	LedgerIntegrityOK         bool
	BalanceVariance           decimal.Decimal
	CompetitionRate           decimal.Decimal
	HealthScore               decimal.Decimal
}

// Snapshot computes the current system health report and publishes it onto
// the process metrics.
func (o *Orchestrator) Snapshot() HealthSnapshot {
	passed, total := o.ledger.Totals()
	score := decimal.NewFromInt(1)
	if total > 0 {
		score = decimal.NewFromInt(int64(passed)).Div(decimal.NewFromInt(int64(total)))
	}
	integrity := o.ledger.VerifyChainIntegrity()
	competition := o.auctions.CompetitionRate()

	variance := decimal.Zero
	for _, acct := range o.balances.Balances() {
		variance = variance.Add(acct.Balance)
	}

	if o.metrics != nil {
		f, _ := score.Float64()
		o.metrics.SystemHealthScore.Set(f)
		v, _ := variance.Abs().Float64()
		o.metrics.LedgerBalanceVariance.Set(v)
		c, _ := competition.Float64()
		o.metrics.CapitalCompetitionRate.Set(c)
		for _, r := range o.rails.Snapshot() {
			up := 0.0
			if r.Status == router.RailUp {
				up = 1.0
			}
			o.metrics.RailHealth.WithLabelValues(r.Name).Set(up)
		}
	}

	return HealthSnapshot{
		LedgerPassed:      passed,
		LedgerTotal:       total,
		LedgerIntegrityOK: integrity,
		BalanceVariance:   variance,
		CompetitionRate:   competition,
		HealthScore:       score,
	}
}

// Invoices exposes the invoice store for read-only queries (GET /invoices).
func (o *Orchestrator) Invoices() *invoice.Store { return o.invoices }

// Settlements exposes the settlement engine for read-only queries.
func (o *Orchestrator) Settlements() *settlement.Engine { return o.settlements }

// NewAcceptanceKey is a convenience for callers bootstrapping a buyer's
// signing identity (tests, demo seeding).
func NewAcceptanceKey() (*ecdsa.PrivateKey, *seal.BuyerKey, error) {
	return seal.NewBuyerKey()
}
