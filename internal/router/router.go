// Package router implements the Smart Router (C10): rail scoring across
// SPEED/COST/BALANCED priority modes with a capacity and health filter.
// Grounded on the teacher's pkg/rtb DSP/SSP connection selection, generalized
// from ad-bidder routing to settlement-rail routing.
package router

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoRailAvailable is returned when no rail passes the eligibility filter.
var ErrNoRailAvailable = errors.New("router: no eligible rail")

// HealthCheckWindow bounds how recently a rail must have been health
// checked to be considered for routing (invariant 206).
const HealthCheckWindow = 30 * time.Second

// Priority selects the routing objective.
type Priority string

const (
	PrioritySpeed    Priority = "SPEED"
	PriorityCost     Priority = "COST"
	PriorityBalanced Priority = "BALANCED"
)

// RailStatus is a rail's operational state.
type RailStatus string

const (
	RailUp      RailStatus = "UP"
	RailDown    RailStatus = "DOWN"
	RailDegraded RailStatus = "DEGRADED"
)

// Rail is one settlement network with its live metrics.
type Rail struct {
	Name            string
	P50             time.Duration
	P99             time.Duration
	SuccessRate     decimal.Decimal
	CostPerTxn      decimal.Decimal
	DailyLimit      decimal.Decimal
	CurrentVolume   decimal.Decimal
	Status          RailStatus
	LastHealthCheck time.Time
}

// Eligible reports whether the rail can carry a transfer of amount, as of
// asOf (invariant 206's 30s health-check window plus the capacity/success
// filter from spec.md §4.10).
func (r *Rail) Eligible(amount decimal.Decimal, asOf time.Time) bool {
	if r.Status != RailUp {
		return false
	}
	if asOf.Sub(r.LastHealthCheck) > HealthCheckWindow {
		return false
	}
	if r.CurrentVolume.Add(amount).GreaterThan(r.DailyLimit) {
		return false
	}
	return r.SuccessRate.GreaterThan(decimal.NewFromFloat(0.95))
}

// score computes the BALANCED priority score, per spec.md §4.10:
// 0.5*(1 - p99/5000) + 0.3*success_rate + 0.2*(1 - cost/10).
func (r *Rail) score() decimal.Decimal {
	p99ms := decimal.NewFromInt(int64(r.P99 / time.Millisecond))
	speedTerm := decimal.NewFromFloat(0.5).Mul(decimal.NewFromInt(1).Sub(p99ms.Div(decimal.NewFromInt(5000))))
	successTerm := decimal.NewFromFloat(0.3).Mul(r.SuccessRate)
	costTerm := decimal.NewFromFloat(0.2).Mul(decimal.NewFromInt(1).Sub(r.CostPerTxn.Div(decimal.NewFromInt(10))))
	return speedTerm.Add(successTerm).Add(costTerm)
}

// Registry holds live rail metrics, guarded for concurrent health-check
// updates and routing reads.
type Registry struct {
	mu    sync.RWMutex
	rails map[string]*Rail
}

// NewRegistry creates an empty rail registry.
func NewRegistry() *Registry {
	return &Registry{rails: make(map[string]*Rail)}
}

// Upsert adds or replaces a rail.
func (reg *Registry) Upsert(r *Rail) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.rails[r.Name] = r
}

// HealthCheck marks a rail as checked at the given time with the given status.
func (reg *Registry) HealthCheck(name string, status RailStatus, asOf time.Time) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rails[name]; ok {
		r.Status = status
		r.LastHealthCheck = asOf
	}
}

// RecordVolume atomically adds amount to a rail's current_volume counter
// once a transfer completes (§5: "shared counter updated atomically").
func (reg *Registry) RecordVolume(name string, amount decimal.Decimal) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rails[name]; ok {
		r.CurrentVolume = r.CurrentVolume.Add(amount)
	}
}

// eligible returns a deterministic copy of every rail eligible for amount as of asOf.
func (reg *Registry) eligible(amount decimal.Decimal, asOf time.Time) []*Rail {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	var out []*Rail
	for _, r := range reg.rails {
		if r.Eligible(amount, asOf) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Select picks a rail for amount under the given priority mode. Selection
// is deterministic for a given metric snapshot (ties broken by rail name).
func Select(reg *Registry, amount decimal.Decimal, priority Priority, asOf time.Time) (*Rail, error) {
	candidates := reg.eligible(amount, asOf)
	if len(candidates) == 0 {
		return nil, ErrNoRailAvailable
	}

	switch priority {
	case PrioritySpeed:
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].P99 != candidates[j].P99 {
				return candidates[i].P99 < candidates[j].P99
			}
			return candidates[i].Name < candidates[j].Name
		})
	case PriorityCost:
		sort.Slice(candidates, func(i, j int) bool {
			if !candidates[i].CostPerTxn.Equal(candidates[j].CostPerTxn) {
				return candidates[i].CostPerTxn.LessThan(candidates[j].CostPerTxn)
			}
			return candidates[i].Name < candidates[j].Name
		})
	default: // BALANCED
		sort.Slice(candidates, func(i, j int) bool {
			si, sj := candidates[i].score(), candidates[j].score()
			if !si.Equal(sj) {
				return si.GreaterThan(sj)
			}
			return candidates[i].Name < candidates[j].Name
		})
	}
	return candidates[0], nil
}

// AllHealthyWithin reports whether every registered rail was health checked
// within window of asOf (the aggregate half of invariant 206).
func (reg *Registry) AllHealthyWithin(window time.Duration, asOf time.Time) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, r := range reg.rails {
		if r.Status != RailUp || asOf.Sub(r.LastHealthCheck) > window {
			return false
		}
	}
	return true
}

// Snapshot returns every rail's current state for the rail_health gauge.
func (reg *Registry) Snapshot() []Rail {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]Rail, 0, len(reg.rails))
	for _, r := range reg.rails {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
