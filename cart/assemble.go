package cart

import (
	"strconv"
	"strings"

	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/dom"
	"github.com/hazyhaar/optsync/optstate"
)

// Assembler builds line items from option state.
type Assembler struct{}

// NewAssembler returns an Assembler.
func NewAssembler() *Assembler { return &Assembler{} }

// Assemble builds the line item for the current state. Options carry the
// exact value the store priced, unset ones their default; tier groups carry
// their label and the quantity is read from the page.
func (a *Assembler) Assemble(doc dom.Document, p *catalog.Product, s *optstate.Store) LineItem {
	opts := make(Options, len(p.Options)+len(p.TierGroups))
	for _, o := range p.Options {
		v, _ := s.Value(o.Name)
		if v == "" {
			v = o.Default
		}
		opts[o.Name] = v
	}
	for _, g := range p.TierGroups {
		opts[g.Name] = s.Derived(g.Name)
	}

	qty := ""
	if el := doc.QuerySelector(p.Selectors.Quantity); el != nil {
		qty = el.Value()
	}
	return LineItem{ID: p.ID, Quantity: ParseQuantity(qty), Options: opts}
}

// ParseQuantity reads the leading integer of raw the way parseInt does.
// Absent, invalid and non-positive values give 1.
func ParseQuantity(raw string) int {
	raw = strings.TrimLeft(raw, " \t\n")
	raw = strings.TrimPrefix(raw, "+")
	end := 0
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(raw[:end])
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

// Validate returns a *ValidationError for the first required option left
// blank in item.
func Validate(p *catalog.Product, item LineItem) error {
	for _, o := range p.Options {
		if o.Required && item.Options[o.Name] == "" {
			msg := o.RequiredMessage
			if msg == "" {
				msg = "Please fill in " + o.Name + " before adding to cart."
			}
			return &ValidationError{Option: o.Name, Message: msg}
		}
	}
	return nil
}
