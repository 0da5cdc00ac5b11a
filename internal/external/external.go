// Package external defines the collaborator interfaces ITN depends on for
// capability the core domain doesn't own itself (compliance screening, FX
// mid-rate feeds, settlement-rail transport), plus in-memory reference
// implementations. Grounded on the teacher's cmd/api/main.go Mock* pattern
// (MockStorage, MockAnalytics, MockPrivacy, MockBlockchain) — simple,
// swappable stand-ins wired at process startup.
package external

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ComplianceBackend screens a counterparty for sanctions/KYC holds. The
// invariant catalog calls IsSanctioned for 401; 003 and 402 read the
// status and KYC fields of balance.Account instead.
type ComplianceBackend interface {
	IsSanctioned(ctx context.Context, accountID string) (bool, error)
	KYCVerified(ctx context.Context, accountID string) (bool, error)
}

// InMemoryCompliance is a reference ComplianceBackend backed by static sets,
// standing in for a real sanctions-list and KYC-provider integration.
type InMemoryCompliance struct {
	mu          sync.RWMutex
	sanctioned  map[string]bool
	kycVerified map[string]bool
}

// NewInMemoryCompliance creates a compliance backend with no holds.
func NewInMemoryCompliance() *InMemoryCompliance {
	return &InMemoryCompliance{sanctioned: make(map[string]bool), kycVerified: make(map[string]bool)}
}

// MarkSanctioned flags accountID as sanctioned, for tests and operator denylists.
func (c *InMemoryCompliance) MarkSanctioned(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sanctioned[accountID] = true
}

// MarkKYCVerified flags accountID as KYC-verified.
func (c *InMemoryCompliance) MarkKYCVerified(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kycVerified[accountID] = true
}

func (c *InMemoryCompliance) IsSanctioned(_ context.Context, accountID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sanctioned[accountID], nil
}

func (c *InMemoryCompliance) KYCVerified(_ context.Context, accountID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kycVerified[accountID], nil
}

// FraudHistoryBackend supplies the relationship/velocity aggregates the
// fraud engine's signals need but the invoice store doesn't track
// (cross-party relationship age, known fraud fingerprints).
type FraudHistoryBackend interface {
	RelationshipInvoiceCount(ctx context.Context, supplierID, buyerID string) (int, error)
	SupplierAverageAmount(ctx context.Context, supplierID string) (decimal.Decimal, error)
	KnownFraudPatterns(ctx context.Context) (map[string]bool, error)
}

// InMemoryFraudHistory is a reference FraudHistoryBackend backed by maps an
// operator can seed directly; a production deployment replaces it with a
// warehouse-backed aggregation service.
type InMemoryFraudHistory struct {
	mu               sync.RWMutex
	relationshipCount map[string]int // "supplierID|buyerID" -> count
	avgAmount        map[string]decimal.Decimal
	patterns         map[string]bool
}

// NewInMemoryFraudHistory creates an empty fraud-history backend.
func NewInMemoryFraudHistory() *InMemoryFraudHistory {
	return &InMemoryFraudHistory{
		relationshipCount: make(map[string]int),
		avgAmount:         make(map[string]decimal.Decimal),
		patterns:          make(map[string]bool),
	}
}

func relKey(supplierID, buyerID string) string { return supplierID + "|" + buyerID }

// RecordRelationship increments the supplier/buyer pair's invoice count, for
// use after each successfully settled invoice.
func (f *InMemoryFraudHistory) RecordRelationship(supplierID, buyerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relationshipCount[relKey(supplierID, buyerID)]++
}

// SetAverageAmount seeds a supplier's historical average invoice amount.
func (f *InMemoryFraudHistory) SetAverageAmount(supplierID string, avg decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.avgAmount[supplierID] = avg
}

// MarkKnownPattern flags a duplicate-pattern fingerprint as a known fraud pattern.
func (f *InMemoryFraudHistory) MarkKnownPattern(fingerprint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns[fingerprint] = true
}

func (f *InMemoryFraudHistory) RelationshipInvoiceCount(_ context.Context, supplierID, buyerID string) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.relationshipCount[relKey(supplierID, buyerID)], nil
}

func (f *InMemoryFraudHistory) SupplierAverageAmount(_ context.Context, supplierID string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.avgAmount[supplierID], nil
}

func (f *InMemoryFraudHistory) KnownFraudPatterns(_ context.Context) (map[string]bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]bool, len(f.patterns))
	for k, v := range f.patterns {
		out[k] = v
	}
	return out, nil
}

// FXProvider stands in for internal/fx.Provider's external rate source in
// process wiring contexts where the concrete type, not the interface, is
// convenient to construct.
type FXProvider struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal // "from/to" -> mid
}

// NewFXProvider creates a provider with no rates; seed them with SetRate.
func NewFXProvider() *FXProvider {
	return &FXProvider{rates: make(map[string]decimal.Decimal)}
}

// SetRate seeds the mid rate for one currency pair.
func (p *FXProvider) SetRate(from, to string, mid decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[from+"/"+to] = mid
}

func (p *FXProvider) FetchMid(_ context.Context, from, to string) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	mid, ok := p.rates[from+"/"+to]
	if !ok {
		return decimal.Zero, fmt.Errorf("external: no rate seeded for %s/%s", from, to)
	}
	return mid, nil
}

// SimulatedTransport simulates a settlement-rail transfer without a real network
// call or a real sleep: latency is modeled as a deterministic per-rail
// duration checked against ctx's deadline, per spec.md §9's guidance against
// time.Sleep-based tests.
type SimulatedTransport struct {
	mu      sync.Mutex
	seq     int
	latency map[string]time.Duration
	clock   func() time.Time
}

// NewSimulatedTransport creates a transport whose rails have zero simulated
// latency until one is set with SetLatency.
func NewSimulatedTransport(clock func() time.Time) *SimulatedTransport {
	if clock == nil {
		clock = time.Now
	}
	return &SimulatedTransport{latency: make(map[string]time.Duration), clock: clock}
}

// SetLatency fixes the simulated latency for a named rail.
func (t *SimulatedTransport) SetLatency(rail string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latency[rail] = d
}

// Transfer reports ctx.Err() if the rail's simulated latency would exceed
// ctx's deadline, otherwise mints a deterministic transaction id.
func (t *SimulatedTransport) Transfer(ctx context.Context, rail, from, to string, amount decimal.Decimal) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	t.mu.Lock()
	d := t.latency[rail]
	if deadline, ok := ctx.Deadline(); ok && t.clock().Add(d).After(deadline) {
		t.mu.Unlock()
		return "", fmt.Errorf("external: simulated transfer on rail %s would exceed deadline", rail)
	}
	t.seq++
	txnID := fmt.Sprintf("TXN-%s-%06d", rail, t.seq)
	t.mu.Unlock()

	_ = from
	_ = to
	_ = amount
	return txnID, nil
}
