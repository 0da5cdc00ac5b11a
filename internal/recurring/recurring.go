// Package recurring implements the Recurring Invoice Template Generator
// (C13): periodic child-invoice minting from a template, with an injectable
// clock so due-date arithmetic is testable without sleeping. Grounded on the
// teacher's scheduled-campaign pacing in pkg/rtb (budget pacer ticks),
// narrowed to calendar-interval invoice generation.
package recurring

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/instatrade/itn/internal/invoice"
)

// Frequency is the recurrence interval.
type Frequency string

const (
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
)

// TemplateStatus tracks whether a template is still generating occurrences.
type TemplateStatus string

const (
	TemplateActive    TemplateStatus = "ACTIVE"
	TemplatePaused    TemplateStatus = "PAUSED"
	TemplateCompleted TemplateStatus = "COMPLETED"
)

var (
	// ErrUnknownTemplate is returned for operations against a missing template id.
	ErrUnknownTemplate = errors.New("recurring: unknown template")
	// ErrTemplateNotDue is returned when Generate is called before NextDue.
	ErrTemplateNotDue = errors.New("recurring: template not yet due")
	// ErrTemplateExhausted is returned once a template has reached MaxOccurrences.
	ErrTemplateExhausted = errors.New("recurring: template exhausted")
)

// Template is a recurring invoice definition a supplier has set up against a
// buyer relationship.
type Template struct {
	ID              string
	SupplierID      string
	BuyerID         string
	Amount          decimal.Decimal
	Currency        string
	Terms           int
	Frequency       Frequency
	MaxOccurrences  int // 0 means unbounded
	OccurrenceCount int
	Status          TemplateStatus
	StartDate       time.Time
	LastGeneratedAt time.Time
}

// nextInterval returns the calendar step for f.
func (f Frequency) nextInterval(from time.Time) time.Time {
	switch f {
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyQuarterly:
		return from.AddDate(0, 3, 0)
	default: // MONTHLY
		return from.AddDate(0, 1, 0)
	}
}

// NextDue returns the next scheduled generation time for t.
func (t *Template) NextDue() time.Time {
	if t.OccurrenceCount == 0 {
		return t.StartDate
	}
	return t.Frequency.nextInterval(t.LastGeneratedAt)
}

// shouldGenerate reports whether t is due to generate its next occurrence as
// of asOf: active, under its occurrence cap, and at/past NextDue.
func (t *Template) shouldGenerate(asOf time.Time) bool {
	if t.Status != TemplateActive {
		return false
	}
	if t.MaxOccurrences > 0 && t.OccurrenceCount >= t.MaxOccurrences {
		return false
	}
	return !asOf.Before(t.NextDue())
}

// Generator mints child invoices from due templates.
type Generator struct {
	mu        sync.Mutex
	templates map[string]*Template
	clock     func() time.Time
}

// NewGenerator creates an empty generator. clock defaults to time.Now.
func NewGenerator(clock func() time.Time) *Generator {
	if clock == nil {
		clock = time.Now
	}
	return &Generator{templates: make(map[string]*Template), clock: clock}
}

// Register adds or replaces a template.
func (g *Generator) Register(t *Template) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *t
	g.templates[t.ID] = &cp
}

// Get returns a copy of the named template.
func (g *Generator) Get(id string) (*Template, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
	}
	cp := *t
	return &cp, nil
}

// Due returns every active template whose NextDue has arrived as of the
// generator's clock, sorted by id for deterministic sweep order.
func (g *Generator) Due() []*Template {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock()
	var out []*Template
	for _, t := range g.templates {
		if t.shouldGenerate(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Generate mints the next child invoice for templateID if it is due,
// advancing the template's occurrence counter and completing it once
// MaxOccurrences is reached.
func (g *Generator) Generate(templateID string) (*invoice.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}
	now := g.clock()
	if !t.shouldGenerate(now) {
		if t.MaxOccurrences > 0 && t.OccurrenceCount >= t.MaxOccurrences {
			return nil, fmt.Errorf("%w: %s", ErrTemplateExhausted, templateID)
		}
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotDue, templateID)
	}

	t.OccurrenceCount++
	t.LastGeneratedAt = now

	childID := fmt.Sprintf("%s-OCC-%03d", t.ID, t.OccurrenceCount)
	inv := &invoice.Invoice{
		ID:         childID,
		SupplierID: t.SupplierID,
		BuyerID:    t.BuyerID,
		Amount:     t.Amount,
		Currency:   t.Currency,
		Terms:      t.Terms,
		Status:     invoice.StatusPending,
		CreatedAt:  now,
	}

	if t.MaxOccurrences > 0 && t.OccurrenceCount >= t.MaxOccurrences {
		t.Status = TemplateCompleted
	}
	return inv, nil
}

// Pause stops a template from generating further occurrences.
func (g *Generator) Pause(templateID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.templates[templateID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}
	t.Status = TemplatePaused
	return nil
}

// Resume reactivates a paused template.
func (g *Generator) Resume(templateID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.templates[templateID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}
	if t.Status == TemplateCompleted {
		return fmt.Errorf("recurring: template %s already completed", templateID)
	}
	t.Status = TemplateActive
	return nil
}
