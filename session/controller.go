package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hazyhaar/optsync/bind"
	"github.com/hazyhaar/optsync/cart"
	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/dom"
	"github.com/hazyhaar/optsync/idgen"
	"github.com/hazyhaar/optsync/journal"
	"github.com/hazyhaar/optsync/loop"
	"github.com/hazyhaar/optsync/optstate"
	"github.com/hazyhaar/optsync/resilience"
)

var (
	// ErrNoSession is returned when no product page is active.
	ErrNoSession = errors.New("session: no active product page")
	// ErrRemovalDisabled is returned by Remove for products without the
	// removal flow.
	ErrRemovalDisabled = errors.New("session: removal not enabled for product")
)

// DefaultRebindDelay coalesces a burst of cart control re-renders.
const DefaultRebindDelay = 100 * time.Millisecond

// Config wires a Controller to a page.
type Config struct {
	Doc      dom.Document
	Sched    loop.Scheduler
	Catalog  *catalog.Catalog
	Service  cart.Service
	Notifier cart.Notifier
	Journal  journal.Recorder
	Logger   *slog.Logger
	// NewID names sessions. Default: "ses_" + UUIDv7.
	NewID idgen.Generator
	// Go runs blocking cart calls off the loop. Default: a goroutine.
	Go func(fn func())

	Wait        resilience.PollConfig
	RebindDelay time.Duration
	RemoveDelay time.Duration

	// OnSubmitted, if set, sees the outcome of every add-to-cart.
	OnSubmitted func(item cart.LineItem, err error)
}

// Controller reacts to page lifecycle notifications. All methods run on
// the loop.
type Controller struct {
	cfg Config
	log *slog.Logger
	ctx context.Context

	cur    *Session
	visOff func()
}

// NewController returns a Controller with no active session.
func NewController(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.Discard
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Prefixed("ses_", idgen.UUIDv7())
	}
	if cfg.Go == nil {
		cfg.Go = func(fn func()) { go fn() }
	}
	if cfg.RebindDelay <= 0 {
		cfg.RebindDelay = DefaultRebindDelay
	}
	return &Controller{cfg: cfg, log: cfg.Logger, ctx: context.Background()}
}

// SetContext sets the context of cart calls.
func (c *Controller) SetContext(ctx context.Context) { c.ctx = ctx }

// SetCatalog swaps the catalog. The active session keeps the product it was
// built from; the next page load uses cat.
func (c *Controller) SetCatalog(cat *catalog.Catalog) {
	c.cfg.Catalog = cat
	c.log.Info("session: catalog replaced", "products", len(cat.Products))
}

// Catalog returns the catalog new sessions are built from.
func (c *Controller) Catalog() *catalog.Catalog { return c.cfg.Catalog }

// Current returns the active session, or nil.
func (c *Controller) Current() *Session { return c.cur }

// Status reports the active session.
func (c *Controller) Status() (Status, bool) {
	if c.cur == nil {
		return Status{}, false
	}
	return c.cur.status(), true
}

// OnPageLoaded handles a page-loaded notification. The previous session is
// always torn down; a new one starts only for allow-listed product pages.
func (c *Controller) OnPageLoaded(page Page) {
	c.teardown()
	if page.Type != PageProduct || !c.cfg.Catalog.Allowed(page.ProductID) {
		c.log.Debug("session: page ignored", "type", page.Type, "product", page.ProductID)
		return
	}
	p, err := c.cfg.Catalog.Product(page.ProductID)
	if err != nil {
		c.log.Error("session: catalog lookup", "product", page.ProductID, "error", err)
		return
	}

	s := c.newSession(p)
	c.cur = s
	c.log.Info("session: product page", "session", s.ID, "product", p.ID, "name", p.Name)
	c.record(s, journal.KindSessionStarted, nil)

	s.cancelWait = resilience.Poll(c.cfg.Sched, c.cfg.Wait, func() bool {
		return c.widgetsPresent(p)
	}, func(err error) {
		s.cancelWait = nil
		if c.cur != s {
			return
		}
		if err != nil {
			s.state = StateDegraded
			c.log.Warn("session: option widgets never appeared", "session", s.ID, "product", p.ID, "error", err)
			c.record(s, journal.KindWaitTimeout, map[string]string{"error": err.Error()})
			c.installVisibility()
			return
		}
		resilience.Safe(c.log, "session activation", func() { c.activate(s) })
	})
}

func (c *Controller) newSession(p *catalog.Product) *Session {
	doc := c.cfg.Doc
	s := &Session{
		ID:       c.cfg.NewID(),
		Product:  p,
		state:    StateWaiting,
		store:    optstate.New(p),
		registry: bind.NewRegistry(),
		display:  bind.NewPriceDisplay(doc, p.Selectors.PriceDisplay, bind.NewGuard(c.cfg.Sched), c.cfg.Catalog.FormatPrice),
		debounce: resilience.NewDebouncer(c.cfg.Sched, c.cfg.RebindDelay),
	}
	s.binder = c.newBinder(s)
	s.price = resilience.NewPriceObserver(resilience.PriceConfig{
		Doc:     doc,
		Display: s.display,
		Total:   func() float64 { return s.store.TotalPrice() },
		Logger:  c.log,
		OnCorrect: func(shown, want string) {
			c.record(s, journal.KindPriceCorrected, map[string]string{"shown": shown, "want": want})
		},
	})
	s.structural = resilience.NewStructuralObserver(resilience.StructuralConfig{
		Doc:       doc,
		Product:   p,
		Debouncer: s.debounce,
		Logger:    c.log,
		OnCartControls: func() {
			if n := s.binder.BindCart(); n > 0 {
				c.record(s, journal.KindRebind, map[string]string{"target": "cart", "count": strconv.Itoa(n)})
			}
		},
		OnOptionAdded: func(name string) {
			s.binder.BindOption(name)
			s.binder.Rederive(name)
			c.record(s, journal.KindRebind, map[string]string{"target": name})
		},
		OnPriceReplaced: func() {
			c.startPrice(s)
			s.binder.Refresh()
		},
	})
	s.submitter = cart.NewSubmitter(cart.SubmitterConfig{
		Doc:      doc,
		Sched:    c.cfg.Sched,
		Product:  p,
		Store:    func() *optstate.Store { return s.store },
		Service:  c.cfg.Service,
		Notifier: c.cfg.Notifier,
		Logger:   c.log,
		Go:       c.cfg.Go,
	})
	return s
}

func (c *Controller) newBinder(s *Session) *bind.Binder {
	return bind.New(bind.Config{
		Doc:      c.cfg.Doc,
		Product:  s.Product,
		Store:    s.store,
		Registry: s.registry,
		Display:  s.display,
		Logger:   c.log,
		OnSubmit: func(ev *dom.Event) { c.submit(s, ev) },
		OnChange: func(option, value string, total float64) {
			c.cfg.Journal.Record(journal.Event{
				SessionID: s.ID,
				ProductID: s.Product.ID,
				Kind:      journal.KindOptionChanged,
				Price:     total,
				Detail:    map[string]string{"option": option, "value": value},
			})
		},
	})
}

// widgetsPresent reports whether any option the product waits on resolves.
func (c *Controller) widgetsPresent(p *catalog.Product) bool {
	waiting := false
	for _, o := range p.Options {
		if !o.Wait {
			continue
		}
		waiting = true
		if c.cfg.Doc.QuerySelector(o.Locator) != nil {
			return true
		}
		if o.Container != "" && c.cfg.Doc.QuerySelector(o.Container) != nil {
			return true
		}
	}
	return !waiting
}

// activate runs the bind and observe sequence on a fresh store.
func (c *Controller) activate(s *Session) {
	if err := bind.Derive(c.cfg.Doc, s.Product, s.store); err != nil {
		c.log.Warn("session: initial values", "session", s.ID, "error", err)
	}
	c.bindAll(s)
	s.state = StateActive
	c.installVisibility()
	c.log.Info("session: active", "session", s.ID, "product", s.Product.ID,
		"price", c.cfg.Catalog.FormatPrice(s.store.TotalPrice()), "bindings", s.registry.Len())
}

func (c *Controller) bindAll(s *Session) {
	s.binder.SyncSuppressions()
	s.binder.Refresh()
	c.startPrice(s)
	s.binder.BindOptionListeners()
	s.binder.BindCart()
	if s.observers.Structural() == nil {
		if s.structural.Start() {
			s.observers.SetStructural(s.structural)
		}
	}
}

func (c *Controller) startPrice(s *Session) {
	if s.price.Start() {
		s.observers.SetPrice(s.price)
		return
	}
	c.log.Debug("session: price display not in page", "session", s.ID)
}

func (c *Controller) installVisibility() {
	if c.visOff != nil {
		c.visOff()
	}
	c.visOff = c.cfg.Doc.AddEventListener("visibilitychange", func(*dom.Event) {
		resilience.Safe(c.log, "visibility recovery", c.onVisibilityChange)
	})
}

// onVisibilityChange recovers from the storefront replacing the page while
// the tab was hidden. The product is re-read from the location.
func (c *Controller) onVisibilityChange() {
	if c.cfg.Doc.Hidden() {
		return
	}
	id, ok := ProductIDFromLocation(c.cfg.Doc.Location())
	if !ok || !c.cfg.Catalog.Allowed(id) {
		c.log.Debug("session: not on a configured product page, skipping recovery", "location", c.cfg.Doc.Location())
		return
	}
	s := c.cur
	if s == nil || s.Product.ID != id {
		c.OnPageLoaded(Page{Type: PageProduct, ProductID: id})
		return
	}
	if s.state == StateWaiting {
		return
	}
	c.recover(s)
}

// recover re-derives the state from the live page and rebinds everything.
// The previous store is kept when the page cannot be read.
func (c *Controller) recover(s *Session) {
	fresh := optstate.New(s.Product)
	if err := bind.Derive(c.cfg.Doc, s.Product, fresh); err != nil {
		c.log.Warn("session: recovery aborted", "session", s.ID, "error", err)
		c.record(s, journal.KindRecoveryFailed, map[string]string{"error": err.Error()})
		return
	}
	s.registry.Clear()
	s.store = fresh
	s.binder = c.newBinder(s)
	c.bindAll(s)
	s.state = StateActive
	c.log.Info("session: recovered", "session", s.ID, "product", s.Product.ID,
		"price", c.cfg.Catalog.FormatPrice(fresh.TotalPrice()))
	c.record(s, journal.KindRecovered, nil)
}

func (c *Controller) submit(s *Session, ev *dom.Event) {
	s.submitter.Submit(c.ctx, ev, func(item cart.LineItem, err error) {
		var ve *cart.ValidationError
		switch {
		case errors.As(err, &ve):
			c.record(s, journal.KindValidation, map[string]string{"option": ve.Option})
		case err != nil:
			c.record(s, journal.KindCartFailed, map[string]string{"error": err.Error()})
		default:
			c.record(s, journal.KindCartAdded, map[string]string{"quantity": strconv.Itoa(item.Quantity)})
		}
		if c.cfg.OnSubmitted != nil {
			c.cfg.OnSubmitted(item, err)
		}
	})
}

// Remove takes item off the cart for a product with the removal flow. The
// cart calls run off the loop; done runs back on it.
func (c *Controller) Remove(item cart.LineItem, done func(cart.LineItem, error)) error {
	s := c.cur
	if s == nil {
		return ErrNoSession
	}
	if !s.Product.Removal || item.ID != s.Product.ID {
		return fmt.Errorf("%w: %d", ErrRemovalDisabled, item.ID)
	}
	item.Options = pinTierCounts(s.Product, item.Options)
	r := cart.NewRemover(c.cfg.Service, c.cfg.RemoveDelay, c.log)
	ctx := c.ctx
	c.cfg.Go(func() {
		left, err := r.Remove(ctx, item)
		c.cfg.Sched.Post(func() {
			if err == nil {
				c.record(s, journal.KindCartRemoved, map[string]string{"remaining": strconv.Itoa(left.Quantity)})
			}
			if done != nil {
				done(left, err)
			}
		})
	})
	return nil
}

// pinTierCounts returns a copy of opts with every tier group set to "0".
// Removal only ever targets lines without engraving.
func pinTierCounts(p *catalog.Product, opts cart.Options) cart.Options {
	out := make(cart.Options, len(opts)+len(p.TierGroups))
	for k, v := range opts {
		out[k] = v
	}
	for _, g := range p.TierGroups {
		out[g.Name] = "0"
	}
	return out
}

// Close tears down the active session.
func (c *Controller) Close() { c.teardown() }

func (c *Controller) teardown() {
	if c.visOff != nil {
		c.visOff()
		c.visOff = nil
	}
	s := c.cur
	if s == nil {
		return
	}
	c.cur = nil
	if s.cancelWait != nil {
		s.cancelWait()
		s.cancelWait = nil
	}
	s.observers.DisconnectAll()
	s.debounce.Stop()
	s.registry.Clear()
	c.log.Info("session: ended", "session", s.ID, "product", s.Product.ID)
	c.record(s, journal.KindSessionEnded, nil)
}

func (c *Controller) record(s *Session, kind journal.Kind, detail map[string]string) {
	c.cfg.Journal.Record(journal.Event{
		SessionID: s.ID,
		ProductID: s.Product.ID,
		Kind:      kind,
		Price:     s.store.TotalPrice(),
		Detail:    detail,
	})
}
