// Package fx implements the FX Service (C7): rate fetch, cache, freshness
// window, and spread application. Grounded on the teacher's cache-plus-TTL
// pattern in pkg/settlement/budget.go's commitment tracking, generalized to
// a per-pair rate cache.
package fx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/instatrade/itn/internal/money"
)

// FreshnessWindow is the maximum age of a rate before it must be refetched
// (invariant 204).
const FreshnessWindow = 60 * time.Second

// Spread is applied on top of the provider's mid rate.
var Spread = decimal.NewFromFloat(0.005)

// Rate is a fetched FX rate for one currency pair.
type Rate struct {
	From, To  string
	Mid       decimal.Decimal
	FetchedAt time.Time
}

// Effective returns Mid * (1 + Spread).
func (r Rate) Effective() decimal.Decimal {
	return money.Round(r.Mid.Mul(decimal.NewFromInt(1).Add(Spread)))
}

// Fresh reports whether the rate's age at asOf is under FreshnessWindow.
func (r Rate) Fresh(asOf time.Time) bool {
	return asOf.Sub(r.FetchedAt) < FreshnessWindow
}

// Provider fetches the current mid rate for a currency pair from an
// external source. Implementations are an external collaborator per
// spec.md §6; internal/external ships an in-memory reference one.
type Provider interface {
	FetchMid(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Service is the FX Service: a per-pair cache in front of Provider,
// refreshing only on a cache miss or staleness — never mid-settlement,
// per invariant 204's "forbids re-fetching during the action."
type Service struct {
	mu       sync.RWMutex
	cache    map[string]Rate
	provider Provider
	clock    func() time.Time
}

// NewService wires a Service to its external rate provider.
func NewService(provider Provider) *Service {
	return &Service{cache: make(map[string]Rate), provider: provider, clock: time.Now}
}

func pairKey(from, to string) string { return from + "/" + to }

// GetRate returns the identity rate when from==to; otherwise it serves a
// fresh cached rate or refreshes from the provider.
func (s *Service) GetRate(ctx context.Context, from, to string) (Rate, error) {
	if from == to {
		return Rate{From: from, To: to, Mid: decimal.NewFromInt(1), FetchedAt: s.clock()}, nil
	}

	key := pairKey(from, to)
	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && cached.Fresh(s.clock()) {
		return cached, nil
	}

	mid, err := s.provider.FetchMid(ctx, from, to)
	if err != nil {
		return Rate{}, fmt.Errorf("fx: fetch %s: %w", key, err)
	}
	fresh := Rate{From: from, To: to, Mid: mid, FetchedAt: s.clock()}
	s.mu.Lock()
	s.cache[key] = fresh
	s.mu.Unlock()
	return fresh, nil
}

// Convert applies GetRate's effective rate to amount, returning the
// converted amount and the rate used.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, Rate, error) {
	rate, err := s.GetRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, Rate{}, err
	}
	return money.Round(amount.Mul(rate.Effective())), rate, nil
}

// PeekRate returns the cached rate for a pair without triggering a
// refresh, used by invariant 204's settlement-time freshness pre-check so
// the check itself never performs a fetch.
func (s *Service) PeekRate(from, to string) (Rate, bool) {
	if from == to {
		return Rate{From: from, To: to, Mid: decimal.NewFromInt(1), FetchedAt: s.clock()}, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.cache[pairKey(from, to)]
	return r, ok
}
