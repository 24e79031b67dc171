package resilience

import (
	"log/slog"

	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/dom"
)

// CartRebindKey is the debouncer key of the cart button rebind.
const CartRebindKey = "cart"

// StructuralConfig wires a StructuralObserver.
type StructuralConfig struct {
	Doc       dom.Document
	Product   *catalog.Product
	Debouncer *Debouncer
	Logger    *slog.Logger

	// OnCartControls runs, debounced, after the purchase controls were
	// added or re-rendered.
	OnCartControls func()
	// OnOptionAdded runs at once for every option whose widget was added.
	OnOptionAdded func(option string)
	// OnPriceReplaced runs when the price element itself was swapped out.
	OnPriceReplaced func()
}

// StructuralObserver watches the body for widgets the storefront adds or
// replaces.
type StructuralObserver struct {
	cfg StructuralConfig
	obs dom.Observer
}

// NewStructuralObserver returns an observer that is not yet watching.
func NewStructuralObserver(cfg StructuralConfig) *StructuralObserver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &StructuralObserver{cfg: cfg}
}

// Start watches the document body. It reports false without a body.
func (s *StructuralObserver) Start() bool {
	s.Disconnect()
	body := s.cfg.Doc.Body()
	if body == nil {
		return false
	}
	s.obs = s.cfg.Doc.Observe(body, dom.ObserveOptions{ChildList: true, Subtree: true},
		func(recs []dom.MutationRecord) {
			Safe(s.cfg.Logger, "structural observer", func() { s.handle(recs) })
		})
	return true
}

// Disconnect stops watching and drops a pending cart rebind.
func (s *StructuralObserver) Disconnect() {
	if s.obs != nil {
		s.obs.Disconnect()
		s.obs = nil
	}
	if s.cfg.Debouncer != nil {
		s.cfg.Debouncer.Cancel(CartRebindKey)
	}
}

// change is what one batch asks for.
type change struct {
	cart    bool
	price   bool
	options map[string]bool
}

func (s *StructuralObserver) handle(recs []dom.MutationRecord) {
	c := s.classify(recs)

	if len(c.options) > 0 && s.cfg.OnOptionAdded != nil {
		for _, o := range s.cfg.Product.Options {
			if c.options[o.Name] {
				s.cfg.OnOptionAdded(o.Name)
			}
		}
	}
	if c.price && s.cfg.OnPriceReplaced != nil {
		s.cfg.OnPriceReplaced()
	}
	if c.cart && s.cfg.OnCartControls != nil {
		s.cfg.Debouncer.Schedule(CartRebindKey, s.cfg.OnCartControls)
	}
}

func (s *StructuralObserver) classify(recs []dom.MutationRecord) change {
	sel := s.cfg.Product.Selectors
	c := change{options: make(map[string]bool)}

	for _, r := range recs {
		if r.Type != dom.ChildList {
			continue
		}
		if r.Target != nil && r.Target.Matches(sel.CartControls) {
			c.cart = true
		}
		for _, n := range r.Added {
			if covers(n, sel.CartControls) {
				c.cart = true
			}
			if covers(n, sel.PriceDisplay) {
				c.price = true
			}
		}
		for _, n := range r.Removed {
			if n.Matches(sel.PriceDisplay) || n.QuerySelector(sel.PriceDisplay) != nil {
				c.price = true
			}
		}

		// A re-rendered options block re-renders every widget in it.
		all := false
		for _, n := range r.Added {
			if covers(n, sel.OptionsContainer) {
				all = true
			}
		}
		for _, o := range s.cfg.Product.Options {
			if all || s.optionHit(r, &o) {
				c.options[o.Name] = true
			}
		}
	}
	return c
}

func (s *StructuralObserver) optionHit(r dom.MutationRecord, o *catalog.Option) bool {
	if o.Container != "" && r.Target != nil && r.Target.Matches(o.Container) {
		return true
	}
	for _, n := range r.Added {
		if o.Container != "" && covers(n, o.Container) {
			return true
		}
		if covers(n, o.Locator) {
			return true
		}
	}
	return false
}

// covers reports whether n matches selector or contains a match.
func covers(n dom.Element, selector string) bool {
	return n.Matches(selector) || n.QuerySelector(selector) != nil
}
