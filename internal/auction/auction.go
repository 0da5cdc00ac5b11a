// Package auction implements the Capital Auction Engine (C9): a time-boxed
// competitive auction among capital providers producing a market discount
// rate, with liquidity fallback and per-provider liquidity reservation.
// Grounded directly on the teacher's auction/auction.go (Auction,
// SubmitBid, RunAuction), narrowed from a sealed second-price auction to an
// open lowest-rate-wins competitive bid.
package auction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/instatrade/itn/internal/money"
	"github.com/instatrade/itn/pkg/log"
)

var (
	ErrAuctionClosed  = errors.New("auction: closed")
	ErrBidExpired     = errors.New("auction: bid past expires_at")
	ErrNotFound       = errors.New("auction: not found")
)

// Window is the fixed auction duration (spec.md §3/§4.9).
const Window = 10 * time.Second

// BidTTL is how long a bid remains active after it is created.
const BidTTL = 10 * time.Second

// FallbackRate is applied when an auction closes without active bids.
var FallbackRate = decimal.NewFromFloat(0.10)

// rate bounds per spec.md §3.
var (
	MinRate = decimal.NewFromFloat(0.02)
	MaxRate = decimal.NewFromFloat(0.15)
)

// riskBaseRate maps a provider's risk appetite to its base discount rate,
// before jitter (spec.md §4.9).
var riskBaseRate = map[string]decimal.Decimal{
	"LOW":    decimal.NewFromFloat(0.04),
	"MEDIUM": decimal.NewFromFloat(0.06),
	"HIGH":   decimal.NewFromFloat(0.09),
}

// BidStatus tracks a bid through its lifetime.
type BidStatus string

const (
	BidActive    BidStatus = "ACTIVE"
	BidAccepted  BidStatus = "ACCEPTED"
	BidExpired   BidStatus = "EXPIRED"
	BidWithdrawn BidStatus = "WITHDRAWN"
)

// Bid is one capital provider's offer on an invoice.
type Bid struct {
	ID           string
	ProviderID   string
	InvoiceID    string
	DiscountRate decimal.Decimal
	Capacity     decimal.Decimal
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Status       BidStatus
}

// activeAt reports whether the bid is still ACTIVE and unexpired asOf.
func (b *Bid) activeAt(asOf time.Time) bool {
	return b.Status == BidActive && asOf.Before(b.ExpiresAt)
}

// Status of the auction as a whole.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Auction is a time-boxed competitive auction for one invoice.
type Auction struct {
	ID         string
	InvoiceID  string
	Amount     decimal.Decimal
	Terms      int
	StartedAt  time.Time
	EndsAt     time.Time
	Bids       []*Bid
	Winner     *Bid
	Status     Status
	LowLiquidity bool // set when fewer than 3 active bids at close (301, Open Question)
}

// Provider is a capital provider eligible to bid.
type Provider struct {
	ID                string
	AvailableLiquidity decimal.Decimal
	MinSize           decimal.Decimal
	MaxSize           decimal.Decimal
	PreferredTerms    map[int]bool
	RiskAppetite      string
}

// Eligible reports whether p can bid on an invoice of the given amount/terms.
func (p *Provider) Eligible(amount decimal.Decimal, terms int) bool {
	if p.AvailableLiquidity.LessThan(amount) {
		return false
	}
	if amount.LessThan(p.MinSize) || amount.GreaterThan(p.MaxSize) {
		return false
	}
	return p.PreferredTerms[terms]
}

// Registry holds registered capital providers and their liquidity, serializing
// concurrent reservations per provider (§5: "concurrent bids on different
// auctions contend for the same pool and must be serialized per provider").
type Registry struct {
	mu        sync.Mutex
	providers map[string]*Provider
	lastVerified map[string]time.Time // per-provider liquidity check time (invariant 503 decay)
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*Provider), lastVerified: make(map[string]time.Time)}
}

// Register adds or replaces a provider.
func (r *Registry) Register(p *Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID] = p
}

// Eligible returns every provider eligible to bid on amount/terms, sorted by
// id for deterministic solicitation order.
func (r *Registry) Eligible(amount decimal.Decimal, terms int) []*Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Provider
	for _, p := range r.providers {
		if p.Eligible(amount, terms) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReserveLiquidity decrements a provider's available liquidity by amount
// when its bid wins (invariant 503). Returns an error if insufficient.
func (r *Registry) ReserveLiquidity(providerID string, amount decimal.Decimal, asOf time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[providerID]
	if !ok {
		return fmt.Errorf("%w: provider %s", ErrNotFound, providerID)
	}
	if p.AvailableLiquidity.LessThan(amount) {
		return fmt.Errorf("auction: insufficient liquidity for provider %s", providerID)
	}
	p.AvailableLiquidity = p.AvailableLiquidity.Sub(amount)
	r.lastVerified[providerID] = asOf
	return nil
}

// ReleaseLiquidity restores amount to a provider, used by settlement rollback.
func (r *Registry) ReleaseLiquidity(providerID string, amount decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[providerID]; ok {
		p.AvailableLiquidity = p.AvailableLiquidity.Add(amount)
	}
}

// LiquidityVerifiedWithin reports whether providerID's liquidity was last
// checked within window of asOf (invariant 503's 30s decay).
func (r *Registry) LiquidityVerifiedWithin(providerID string, window time.Duration, asOf time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.lastVerified[providerID]
	if !ok {
		return false
	}
	return asOf.Sub(last) <= window
}

// JitterFunc returns a uniform value in [-0.01, 0.01]; injected so tests are
// deterministic (spec.md §9).
type JitterFunc func() decimal.Decimal

// Engine runs capital auctions against a provider registry.
type Engine struct {
	registry *Registry
	jitter   JitterFunc
	clock    func() time.Time
	log      log.Logger

	mu       sync.Mutex
	auctions map[string]*Auction

	competitionMu sync.Mutex
	competition   []bool // rolling record of ">=3 bids" per completed auction, for 301
}

// NewEngine wires an engine to its provider registry and a jitter source.
func NewEngine(registry *Registry, jitter JitterFunc, logger log.Logger) *Engine {
	return &Engine{
		registry: registry,
		jitter:   jitter,
		clock:    time.Now,
		log:      logger,
		auctions: make(map[string]*Auction),
	}
}

// StartAuction opens a 10s auction and synchronously solicits bids from
// every eligible provider.
func (e *Engine) StartAuction(ctx context.Context, invoiceID string, amount decimal.Decimal, terms int) (*Auction, error) {
	started := e.clock()
	a := &Auction{
		ID:        uuid.NewString(),
		InvoiceID: invoiceID,
		Amount:    amount,
		Terms:     terms,
		StartedAt: started,
		EndsAt:    started.Add(Window),
		Status:    StatusOpen,
	}

	for _, p := range e.registry.Eligible(amount, terms) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		bid := e.solicitBid(p, a)
		a.Bids = append(a.Bids, bid)
	}

	e.mu.Lock()
	e.auctions[a.ID] = a
	e.mu.Unlock()

	if e.log != nil {
		e.log.Info("auction opened", log.String("auction_id", a.ID), log.Int("bids", len(a.Bids)))
	}
	return a, nil
}

// solicitBid computes one provider's rate: base(risk appetite) + jitter,
// clamped to [MinRate, MaxRate].
func (e *Engine) solicitBid(p *Provider, a *Auction) *Bid {
	base, ok := riskBaseRate[p.RiskAppetite]
	if !ok {
		base = riskBaseRate["MEDIUM"]
	}
	rate := base.Add(e.jitter())
	if rate.LessThan(MinRate) {
		rate = MinRate
	}
	if rate.GreaterThan(MaxRate) {
		rate = MaxRate
	}

	now := e.clock()
	return &Bid{
		ID:           uuid.NewString(),
		ProviderID:   p.ID,
		InvoiceID:    a.InvoiceID,
		DiscountRate: money.Round(rate),
		Capacity:     a.Amount,
		CreatedAt:    now,
		ExpiresAt:    now.Add(BidTTL),
		Status:       BidActive,
	}
}

// FinalizeAuction must be called at or after a.EndsAt. It selects the
// lowest-rate active bid (tie-break: earliest created_at, then
// lexicographic provider id), reserves that provider's liquidity, and marks
// every other bid EXPIRED. With no active bids it mints a synthetic
// fallback bid at FallbackRate and emits a LOW_LIQUIDITY signal.
func (e *Engine) FinalizeAuction(auctionID string) (*Auction, error) {
	e.mu.Lock()
	a, ok := e.auctions[auctionID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: auction %s", ErrNotFound, auctionID)
	}

	now := e.clock()
	var active []*Bid
	for _, b := range a.Bids {
		if b.activeAt(now) {
			active = append(active, b)
		} else if b.Status == BidActive {
			b.Status = BidExpired
		}
	}

	e.recordCompetition(len(active) >= 3)
	a.LowLiquidity = len(active) < 3

	if len(active) == 0 {
		fallback := &Bid{
			ID:           uuid.NewString(),
			ProviderID:   "SYSTEM",
			InvoiceID:    a.InvoiceID,
			DiscountRate: FallbackRate,
			Capacity:     a.Amount,
			CreatedAt:    now,
			ExpiresAt:    now.Add(BidTTL),
			Status:       BidAccepted,
		}
		a.Winner = fallback
		a.Bids = append(a.Bids, fallback)
		a.Status = StatusCompleted
		if e.log != nil {
			e.log.Warn("auction closed with no active bids, using fallback rate",
				log.String("auction_id", a.ID))
		}
		return a, nil
	}

	sort.Slice(active, func(i, j int) bool {
		if !active[i].DiscountRate.Equal(active[j].DiscountRate) {
			return active[i].DiscountRate.LessThan(active[j].DiscountRate)
		}
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].ProviderID < active[j].ProviderID
	})

	winner := active[0]
	if err := e.registry.ReserveLiquidity(winner.ProviderID, winner.Capacity, now); err != nil {
		a.Status = StatusFailed
		return a, err
	}
	winner.Status = BidAccepted
	for _, b := range active[1:] {
		b.Status = BidExpired
	}

	a.Winner = winner
	a.Status = StatusCompleted
	return a, nil
}

func (e *Engine) recordCompetition(threeOrMore bool) {
	e.competitionMu.Lock()
	defer e.competitionMu.Unlock()
	e.competition = append(e.competition, threeOrMore)
	if len(e.competition) > 10000 {
		e.competition = e.competition[len(e.competition)-10000:]
	}
}

// CompetitionRate returns the rolling fraction of auctions that closed with
// >= 3 active bids (invariant 301).
func (e *Engine) CompetitionRate() decimal.Decimal {
	e.competitionMu.Lock()
	defer e.competitionMu.Unlock()
	if len(e.competition) == 0 {
		return decimal.NewFromInt(1)
	}
	hits := 0
	for _, v := range e.competition {
		if v {
			hits++
		}
	}
	return decimal.NewFromInt(int64(hits)).Div(decimal.NewFromInt(int64(len(e.competition))))
}

// Get returns the auction by id.
func (e *Engine) Get(id string) (*Auction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.auctions[id]
	return a, ok
}
