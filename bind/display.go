package bind

import (
	"github.com/hazyhaar/optsync/dom"
	"github.com/hazyhaar/optsync/loop"
)

// Guard is the suppression token shared by the price writer and the price
// observer. The writer holds it across its own write; the observer ignores
// batches while it is held. Release is deferred by one timer tick so the
// mutation records of the write are delivered while the token is still held.
type Guard struct {
	sched loop.Scheduler
	held  int
}

// NewGuard returns a released Guard.
func NewGuard(sched loop.Scheduler) *Guard { return &Guard{sched: sched} }

// Acquire takes the token. The returned release is idempotent.
func (g *Guard) Acquire() (release func()) {
	g.held++
	done := false
	return func() {
		if done {
			return
		}
		done = true
		g.sched.After(0, func() { g.held-- })
	}
}

// Active reports whether a self-write is in flight.
func (g *Guard) Active() bool { return g.held > 0 }

// PriceDisplay writes formatted totals into the price element.
type PriceDisplay struct {
	doc      dom.Document
	selector string
	guard    *Guard
	format   func(float64) string
}

// NewPriceDisplay targets the element matching selector.
func NewPriceDisplay(doc dom.Document, selector string, guard *Guard, format func(float64) string) *PriceDisplay {
	return &PriceDisplay{doc: doc, selector: selector, guard: guard, format: format}
}

// Element returns the current price element, or nil.
func (p *PriceDisplay) Element() dom.Element { return p.doc.QuerySelector(p.selector) }

// Guard returns the token the display writes under.
func (p *PriceDisplay) Guard() *Guard { return p.guard }

// Format renders a total.
func (p *PriceDisplay) Format(total float64) string { return p.format(total) }

// Write sets the displayed price to total. It reports whether the page was
// changed; matching text and a missing element are no-ops.
func (p *PriceDisplay) Write(total float64) bool {
	el := p.Element()
	if el == nil {
		return false
	}
	want := p.format(total)
	if el.Text() == want {
		return false
	}
	release := p.guard.Acquire()
	defer release()
	el.SetText(want)
	return true
}
