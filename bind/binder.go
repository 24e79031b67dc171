package bind

import (
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/dom"
	"github.com/hazyhaar/optsync/optstate"
)

// formControl wraps each storefront input together with its overlay label.
const formControl = ".form-control"

// Config wires a Binder to one product-page session.
type Config struct {
	Doc      dom.Document
	Product  *catalog.Product
	Store    *optstate.Store
	Registry *Registry
	Display  *PriceDisplay
	Logger   *slog.Logger

	// OnSubmit runs when an engine-owned cart button is clicked. The event
	// has already had its default prevented.
	OnSubmit func(ev *dom.Event)
	// OnChange, if set, observes every committed option edit.
	OnChange func(option, value string, total float64)
}

// Binder attaches option and cart listeners for one session.
type Binder struct {
	cfg Config
	log *slog.Logger
}

// New returns a Binder. Registry and Display are required.
func New(cfg Config) *Binder {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Binder{cfg: cfg, log: cfg.Logger}
}

// Store returns the option store the binder writes to.
func (b *Binder) Store() *optstate.Store { return b.cfg.Store }

// BindOptionListeners attaches listeners to every option widget that is
// currently in the page and not yet bound. It returns how many pairs were
// newly bound; repeated calls on an unchanged page return 0.
func (b *Binder) BindOptionListeners() int {
	b.cfg.Registry.Prune()
	n := 0
	for i := range b.cfg.Product.Options {
		n += b.bindOption(&b.cfg.Product.Options[i])
	}
	if n > 0 {
		b.log.Debug("bind: option listeners attached", "product", b.cfg.Product.ID, "pairs", n)
	}
	return n
}

// BindOption attaches the listeners of one option. The structural observer
// calls it when the option's container is re-rendered.
func (b *Binder) BindOption(name string) int {
	o, ok := b.cfg.Product.Option(name)
	if !ok {
		return 0
	}
	b.cfg.Registry.Prune()
	return b.bindOption(o)
}

func (b *Binder) bindOption(o *catalog.Option) int {
	doc, reg := b.cfg.Doc, b.cfg.Registry

	if o.Kind == catalog.KindRadio {
		c := doc.QuerySelector(o.Container)
		if c == nil {
			return 0
		}
		if reg.Bind(c, "change", func(*dom.Event) { b.onRadioChange(o) }, dom.ListenerOptions{}) {
			return 1
		}
		return 0
	}

	el := doc.QuerySelector(o.Locator)
	if el == nil {
		return 0
	}
	n := 0
	if o.Kind == catalog.KindText && o.Placeholder != "" {
		n += b.bindPlaceholder(o, el)
	}
	if reg.Bind(el, o.Event, func(*dom.Event) { b.onEdit(o, el) }, dom.ListenerOptions{}) {
		n++
	}
	return n
}

func (b *Binder) bindPlaceholder(o *catalog.Option, el dom.Element) int {
	reg := b.cfg.Registry
	if !reg.Bound(el, "focus") {
		if o.PlaceholderOverlay != "" {
			if fc := el.Closest(formControl); fc != nil {
				if overlay := fc.QuerySelector(o.PlaceholderOverlay); overlay != nil {
					overlay.Remove()
				}
			}
		}
		if el.Value() == "" {
			el.SetAttr("placeholder", o.Placeholder)
		}
	}
	n := 0
	if reg.Bind(el, "focus", func(*dom.Event) { el.SetAttr("placeholder", "") }, dom.ListenerOptions{}) {
		n++
	}
	if reg.Bind(el, "blur", func(*dom.Event) {
		if el.Value() == "" {
			el.SetAttr("placeholder", o.Placeholder)
		}
	}, dom.ListenerOptions{}) {
		n++
	}
	return n
}

func (b *Binder) onRadioChange(o *catalog.Option) {
	v := o.Default
	if checked := b.cfg.Doc.QuerySelector(o.Locator); checked != nil {
		v = checked.Value()
	}
	b.commit(o, nil, v)
}

func (b *Binder) onEdit(o *catalog.Option, el dom.Element) {
	b.commit(o, el, el.Value())
}

// commit writes v to the store. A budget overflow trims the field's last
// character and leaves the store unchanged.
func (b *Binder) commit(o *catalog.Option, el dom.Element, v string) {
	total, err := b.cfg.Store.SetOption(o.Name, v)
	switch {
	case errors.Is(err, optstate.ErrBudgetExceeded):
		if el != nil {
			el.SetValue(trimLast(v))
		}
		b.log.Debug("bind: edit rejected", "option", o.Name, "error", err)
		return
	case err != nil:
		b.log.Warn("bind: edit failed", "option", o.Name, "error", err)
		return
	}
	b.applySuppressions(o, v)
	b.cfg.Display.Write(total)
	if b.cfg.OnChange != nil {
		b.cfg.OnChange(o.Name, v, total)
	}
}

// applySuppressions mirrors the store's suppressions in the page: the
// target's container is hidden and its input cleared.
func (b *Binder) applySuppressions(o *catalog.Option, v string) {
	for _, sup := range o.Suppresses {
		active := v == sup.When
		if sup.Container != "" {
			if c := b.cfg.Doc.QuerySelector(sup.Container); c != nil {
				if active {
					c.SetStyle("display", "none")
				} else {
					c.SetStyle("display", "block")
				}
			}
		}
		if !active {
			continue
		}
		if t, ok := b.cfg.Product.Option(sup.Option); ok {
			if el := b.cfg.Doc.QuerySelector(t.Locator); el != nil {
				el.SetValue("")
			}
		}
	}
}

// SyncSuppressions applies every suppression the store currently holds to
// the page. Called after a full derivation.
func (b *Binder) SyncSuppressions() {
	for i := range b.cfg.Product.Options {
		o := &b.cfg.Product.Options[i]
		if len(o.Suppresses) == 0 {
			continue
		}
		if v, ok := b.cfg.Store.Value(o.Name); ok {
			b.applySuppressions(o, v)
		}
	}
}

// BindCart takes over the add-to-bag and add-more buttons. Each button
// still owned by the storefront is clone-replaced to drop the host's
// listeners, then given a capturing click listener. It returns how many
// buttons were taken over.
func (b *Binder) BindCart() int {
	reg, sel := b.cfg.Registry, b.cfg.Product.Selectors
	reg.Prune()
	n := 0
	for _, wrapper := range []string{sel.AddToBag, sel.AddMore} {
		div := b.cfg.Doc.QuerySelector(wrapper)
		if div == nil {
			continue
		}
		btn := div.QuerySelector(sel.CartButton)
		if btn == nil || reg.Bound(btn, "click") {
			continue
		}
		clone := btn.CloneReplace()
		reg.Bind(clone, "click", func(ev *dom.Event) {
			if b.cfg.OnSubmit != nil {
				b.cfg.OnSubmit(ev)
			}
		}, dom.ListenerOptions{Capture: true, Exclusive: true})
		n++
	}
	if n > 0 {
		b.log.Debug("bind: cart buttons taken over", "product", b.cfg.Product.ID, "buttons", n)
	}
	return n
}

// Refresh writes the store's total into the price display.
func (b *Binder) Refresh() bool { return b.cfg.Display.Write(b.cfg.Store.TotalPrice()) }

// Rederive re-reads one option from the page and commits it. Used when a
// widget is re-rendered with a value the engine never saw an event for.
func (b *Binder) Rederive(name string) {
	o, ok := b.cfg.Product.Option(name)
	if !ok {
		return
	}
	v, ok := readOption(b.cfg.Doc, o)
	if !ok {
		return
	}
	b.commit(o, nil, v)
}

func trimLast(s string) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-size]
}
