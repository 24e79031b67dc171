package resilience

import (
	"log/slog"

	"github.com/hazyhaar/optsync/bind"
	"github.com/hazyhaar/optsync/dom"
)

// PriceConfig wires a PriceObserver.
type PriceConfig struct {
	Doc     dom.Document
	Display *bind.PriceDisplay
	// Total returns the derived price the display must show.
	Total  func() float64
	Logger *slog.Logger
	// OnCorrect, if set, is told about every overwrite of a foreign price.
	OnCorrect func(shown, want string)
}

// PriceObserver keeps the price element showing the derived total. Any
// change it did not make is overwritten; its own writes are ignored while
// the display guard is held and are no-ops afterwards since the text then
// matches.
type PriceObserver struct {
	cfg    PriceConfig
	target dom.Element
	obs    dom.Observer
}

// NewPriceObserver returns an observer that is not yet watching.
func NewPriceObserver(cfg PriceConfig) *PriceObserver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PriceObserver{cfg: cfg}
}

// Start watches the current price element. It reports false when the
// element is not in the page.
func (p *PriceObserver) Start() bool {
	p.Disconnect()
	el := p.cfg.Display.Element()
	if el == nil {
		return false
	}
	p.target = el
	p.obs = p.cfg.Doc.Observe(el, dom.ObserveOptions{
		ChildList:     true,
		CharacterData: true,
		Subtree:       true,
	}, func(recs []dom.MutationRecord) {
		Safe(p.cfg.Logger, "price observer", func() { p.handle(recs) })
	})
	return true
}

// Target is the element being watched, or nil.
func (p *PriceObserver) Target() dom.Element { return p.target }

// Disconnect stops watching.
func (p *PriceObserver) Disconnect() {
	if p.obs != nil {
		p.obs.Disconnect()
		p.obs = nil
	}
	p.target = nil
}

func (p *PriceObserver) handle(recs []dom.MutationRecord) {
	if p.cfg.Display.Guard().Active() || p.target == nil {
		return
	}
	relevant := false
	for _, r := range recs {
		if r.Type == dom.ChildList || r.Type == dom.CharacterData {
			relevant = true
			break
		}
	}
	if !relevant {
		return
	}
	total := p.cfg.Total()
	shown, want := p.target.Text(), p.cfg.Display.Format(total)
	if shown == want {
		return
	}
	p.cfg.Logger.Debug("resilience: price overwritten by host, restoring", "shown", shown, "want", want)
	p.cfg.Display.Write(total)
	if p.cfg.OnCorrect != nil {
		p.cfg.OnCorrect(shown, want)
	}
}
