package session

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/optsync/cart"
	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/dom"
	"github.com/hazyhaar/optsync/dom/memdom"
	"github.com/hazyhaar/optsync/idgen"
	"github.com/hazyhaar/optsync/internal/fixture"
	"github.com/hazyhaar/optsync/journal"
	"github.com/hazyhaar/optsync/loop"
)

const (
	og      = 793363376
	touring = 793363171
	ogTest  = 800709674
	blocked = 793363386
)

type recorder struct{ evs []journal.Event }

func (r *recorder) Record(ev journal.Event) { r.evs = append(r.evs, ev) }

func (r *recorder) count(kind journal.Kind) int {
	n := 0
	for _, ev := range r.evs {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	doc       *memdom.Document
	sched     *loop.Manual
	svc       *cart.Memory
	ctrl      *Controller
	journal   *recorder
	submitted []error
}

func newHarness(t *testing.T, markup string) *harness {
	t.Helper()
	m := loop.NewManual()
	doc, err := memdom.Parse(markup, m)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{doc: doc, sched: m, svc: cart.NewMemory(), journal: &recorder{}}
	h.ctrl = NewController(Config{
		Doc:         doc,
		Sched:       m,
		Catalog:     catalog.Builtin(),
		Service:     h.svc,
		Journal:     h.journal,
		Logger:      slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		NewID:       idgen.Prefixed("ses_", idgen.Sequence()),
		Go:          func(fn func()) { fn() },
		RemoveDelay: time.Millisecond,
		OnSubmitted: func(_ cart.LineItem, err error) { h.submitted = append(h.submitted, err) },
	})
	return h
}

// load activates a product page and lets the element wait succeed.
func (h *harness) load(id int64) {
	h.ctrl.OnPageLoaded(Page{Type: PageProduct, ProductID: id})
	h.sched.Advance(0)
}

func (h *harness) q(sel string) dom.Element { return h.doc.QuerySelector(sel) }

func (h *harness) price() string {
	return h.q(".details-product-price__value").Text()
}

func (h *harness) cartButton() dom.Element {
	return h.q(".details-product-purchase__add-to-bag .form-control__button")
}

func (h *harness) sleep() { h.doc.SetHidden(true) }

func (h *harness) wake() {
	h.doc.SetHidden(false)
	h.sched.Advance(0)
}

func (h *harness) wakeUp() {
	h.sleep()
	h.wake()
}

func TestOnPageLoaded_ActivatesAllowedProduct(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.load(og)

	s := h.ctrl.Current()
	if s == nil || s.State() != StateActive {
		t.Fatalf("session: got %+v, want active", s)
	}
	if s.ID != "ses_1" {
		t.Fatalf("session id: got %q, want ses_1", s.ID)
	}
	if got := h.price(); got != "$169.00" {
		t.Fatalf("price: got %q, want $169.00", got)
	}
	if n := h.doc.ObserverCount(); n != 2 {
		t.Fatalf("observers: got %d, want 2", n)
	}
	if n := h.doc.DocListenerCount("visibilitychange"); n != 1 {
		t.Fatalf("visibility listeners: got %d, want 1", n)
	}
	if h.journal.count(journal.KindSessionStarted) != 1 {
		t.Fatal("session_started not journaled")
	}
}

func TestOnPageLoaded_IgnoresOtherPages(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))

	h.ctrl.OnPageLoaded(Page{Type: PageProduct, ProductID: blocked})
	h.ctrl.OnPageLoaded(Page{Type: "CATEGORY", ProductID: og})
	h.sched.Settle(10 * time.Second)

	if h.ctrl.Current() != nil {
		t.Fatal("session started for a page outside the allow-list")
	}
	if h.doc.ObserverCount() != 0 || h.doc.DocListenerCount("visibilitychange") != 0 {
		t.Fatal("observers or listeners installed")
	}
	if got := h.price(); got != "$150.00" {
		t.Fatalf("price touched: got %q", got)
	}
}

func TestOnPageLoaded_ReloadReplacesSession(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.load(og)
	first := h.ctrl.Current()
	h.load(og)

	if h.ctrl.Current() == first {
		t.Fatal("session not recreated")
	}
	if first.Registry().Len() != 0 {
		t.Fatalf("old registry: got %d entries, want 0", first.Registry().Len())
	}
	if n := h.doc.ObserverCount(); n != 2 {
		t.Fatalf("observers: got %d, want 2", n)
	}
	if n := h.doc.DocListenerCount("visibilitychange"); n != 1 {
		t.Fatalf("visibility listeners: got %d, want 1", n)
	}
	grip := h.q(".details-product-option--Grip-Color select").(*memdom.Element)
	if n := grip.ListenerCount("change"); n != 1 {
		t.Fatalf("grip listeners: got %d, want 1", n)
	}
}

func TestOnPageLoaded_LeavingTearsDown(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.load(og)
	h.ctrl.OnPageLoaded(Page{Type: "CATEGORY"})

	if h.ctrl.Current() != nil {
		t.Fatal("session survived navigation")
	}
	if h.doc.ObserverCount() != 0 || h.doc.DocListenerCount("visibilitychange") != 0 {
		t.Fatal("observers or listeners left behind")
	}
	if h.journal.count(journal.KindSessionEnded) != 1 {
		t.Fatal("session_ended not journaled")
	}
}

func TestWait_WidgetsRenderLate(t *testing.T) {
	h := newHarness(t, fixture.Bare("$150.00"))
	h.ctrl.OnPageLoaded(Page{Type: PageProduct, ProductID: og})
	h.sched.Advance(250 * time.Millisecond)
	if h.ctrl.Current().State() != StateWaiting {
		t.Fatalf("state: got %q, want waiting", h.ctrl.Current().State())
	}

	if _, err := h.doc.Insert(h.q(".details-product-options"), fixture.SkiOptions()); err != nil {
		t.Fatal(err)
	}
	h.sched.Advance(100 * time.Millisecond)

	if st := h.ctrl.Current().State(); st != StateActive {
		t.Fatalf("state: got %q, want active", st)
	}
	if got := h.price(); got != "$169.00" {
		t.Fatalf("price: got %q, want $169.00", got)
	}
}

func TestWait_TimeoutLeavesSessionDegraded(t *testing.T) {
	h := newHarness(t, fixture.Bare("$150.00"))
	h.ctrl.OnPageLoaded(Page{Type: PageProduct, ProductID: og})
	h.sched.Advance(5 * time.Second)

	s := h.ctrl.Current()
	if s.State() != StateDegraded {
		t.Fatalf("state: got %q, want degraded", s.State())
	}
	if h.journal.count(journal.KindWaitTimeout) != 1 {
		t.Fatal("wait_timeout not journaled")
	}
	if h.doc.ObserverCount() != 0 {
		t.Fatal("observers started on a degraded session")
	}
	if got := h.price(); got != "$150.00" {
		t.Fatalf("price touched: got %q", got)
	}
	if h.sched.Pending() != 0 {
		t.Fatalf("pending work after timeout: %d", h.sched.Pending())
	}
}

func TestEdit_UpdatesPriceAndJournal(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.load(og)

	h.doc.Change(h.q(".details-product-option--Grip-Color select"), "Cork")
	h.sched.Advance(0)

	if got := h.price(); got != "$188.00" {
		t.Fatalf("price: got %q, want $188.00", got)
	}
	if h.journal.count(journal.KindOptionChanged) != 1 {
		t.Fatal("option_changed not journaled")
	}
}

func TestPrice_HostOverwriteRestored(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.load(og)

	h.doc.SetTextData(h.q(".details-product-price__value"), "$999.00")
	h.sched.Advance(0)

	if got := h.price(); got != "$169.00" {
		t.Fatalf("price: got %q, want $169.00", got)
	}
	if h.journal.count(journal.KindPriceCorrected) != 1 {
		t.Fatal("price_corrected not journaled")
	}
}

func TestPrice_ElementReplaced(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.load(og)

	if _, err := h.doc.ReplaceWith(h.q(".details-product-price__value"), fixture.Price("$150.00")); err != nil {
		t.Fatal(err)
	}
	h.sched.Advance(0)
	if got := h.price(); got != "$169.00" {
		t.Fatalf("price after replace: got %q, want $169.00", got)
	}

	h.doc.SetTextData(h.q(".details-product-price__value"), "$1.00")
	h.sched.Advance(0)
	if got := h.price(); got != "$169.00" {
		t.Fatalf("new element not observed: got %q", got)
	}
}

func TestStructural_StrapRerenderRederives(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.load(og)

	if _, err := h.doc.ReplaceWith(h.q(".details-product-option--Strap"), fixture.Strap("mtnStrap")); err != nil {
		t.Fatal(err)
	}
	h.sched.Advance(0)
	if got := h.price(); got != "$197.00" {
		t.Fatalf("price after re-render: got %q, want $197.00", got)
	}

	h.doc.Check(h.q("input[name='Strap'][value='None']"))
	h.sched.Advance(0)
	if got := h.price(); got != "$164.80" {
		t.Fatalf("price after change: got %q, want $164.80", got)
	}
}

func TestSubmit_ValidationThenAdd(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.load(og)

	if !h.doc.Click(h.cartButton()) {
		t.Fatal("host default not prevented")
	}
	var ve *cart.ValidationError
	if len(h.submitted) != 1 || !errors.As(h.submitted[0], &ve) {
		t.Fatalf("first submit: got %v, want validation error", h.submitted)
	}
	if h.svc.Adds() != 0 {
		t.Fatal("service called for an invalid item")
	}

	h.doc.Change(h.q("input[aria-label='Length (cm or inches)']"), "120cm")
	h.doc.Click(h.cartButton())
	h.sched.Advance(0)

	if len(h.submitted) != 2 || h.submitted[1] != nil {
		t.Fatalf("second submit: got %v, want success", h.submitted)
	}
	if h.journal.count(journal.KindValidation) != 1 || h.journal.count(journal.KindCartAdded) != 1 {
		t.Fatal("submit outcomes not journaled")
	}
}

func TestStructural_CartControlsRebound(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.load(og)
	h.doc.Change(h.q("input[aria-label='Length (cm or inches)']"), "120cm")

	for i := 0; i < 3; i++ {
		if _, err := h.doc.ReplaceWith(h.q(".details-product-purchase__controls"), fixture.Controls("2")); err != nil {
			t.Fatal(err)
		}
		h.sched.Advance(20 * time.Millisecond)
	}
	h.sched.Advance(100 * time.Millisecond)

	rebinds := 0
	for _, ev := range h.journal.evs {
		if ev.Kind == journal.KindRebind && ev.Detail["target"] == "cart" {
			rebinds++
		}
	}
	if rebinds != 1 {
		t.Fatalf("cart rebinds: got %d, want 1", rebinds)
	}

	h.doc.Click(h.cartButton())
	h.sched.Advance(0)
	c, _ := h.svc.GetCart(t.Context())
	if len(c.Items) != 1 || c.Items[0].Quantity != 2 {
		t.Fatalf("cart: got %+v, want one line of 2", c.Items)
	}
}

func TestVisibility_RecoversLiveState(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.doc.SetLocation("/store/Poles/p/793363376")
	h.load(og)
	s := h.ctrl.Current()
	old := s.Store()

	h.sleep()
	// the storefront swaps the grip widget while the tab sleeps
	if _, err := h.doc.ReplaceWith(h.q(".details-product-option--Grip-Color"),
		`<div class="details-product-option details-product-option--Grip-Color"><select><option value="Black">Black</option><option value="Cork" selected>Cork</option></select></div>`); err != nil {
		t.Fatal(err)
	}
	h.wake()

	if h.ctrl.Current() != s {
		t.Fatal("recovery replaced the session")
	}
	if s.Store() == old {
		t.Fatal("store not re-derived")
	}
	if got := h.price(); got != "$188.00" {
		t.Fatalf("price: got %q, want $188.00", got)
	}
	if h.journal.count(journal.KindRecovered) != 1 {
		t.Fatal("recovered not journaled")
	}
	grip := h.q(".details-product-option--Grip-Color select").(*memdom.Element)
	if n := grip.ListenerCount("change"); n != 1 {
		t.Fatalf("grip listeners: got %d, want 1", n)
	}
}

func TestVisibility_NotAllowedIsNoop(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.load(og)
	s := h.ctrl.Current()
	old, bindings := s.Store(), s.Registry().Len()

	h.doc.SetLocation("/store/p/793363386")
	h.q(".details-product-option--Grip-Color select").SetValue("Cork")
	h.wakeUp()

	if s.Store() != old || s.Registry().Len() != bindings {
		t.Fatal("state mutated for a product outside the allow-list")
	}
	if got := h.price(); got != "$169.00" {
		t.Fatalf("price: got %q, want $169.00", got)
	}
	if h.journal.count(journal.KindRecovered) != 0 {
		t.Fatal("recovery ran")
	}
}

func TestVisibility_OtherAllowedProductActivates(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.load(og)

	h.doc.SetLocation("/store/p/793363171")
	h.wakeUp()

	s := h.ctrl.Current()
	if s == nil || s.Product.ID != touring || s.State() != StateActive {
		t.Fatalf("session: got %+v, want active touring", s)
	}
	if got := h.price(); got != "$185.00" {
		t.Fatalf("price: got %q, want $185.00", got)
	}
}

func TestVisibility_RecoveryFailureKeepsState(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.doc.SetLocation("/store/p/793363376")
	h.load(og)
	s := h.ctrl.Current()
	old := s.Store()

	h.q("input[aria-label='Engraving']").SetValue(strings.Repeat("A", 41))
	h.q(".details-product-option--Grip-Color select").SetValue("Cork")
	h.wakeUp()

	if s.Store() != old {
		t.Fatal("store swapped after a failed derive")
	}
	if got := h.price(); got != "$169.00" {
		t.Fatalf("price: got %q, want $169.00", got)
	}
	if h.journal.count(journal.KindRecoveryFailed) != 1 {
		t.Fatal("recovery_failed not journaled")
	}
}

func TestRemove(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	if err := h.ctrl.Remove(cart.LineItem{ID: og}, nil); !errors.Is(err, ErrNoSession) {
		t.Fatalf("no session: got %v", err)
	}

	h.load(og)
	if err := h.ctrl.Remove(cart.LineItem{ID: og}, nil); !errors.Is(err, ErrRemovalDisabled) {
		t.Fatalf("removal disabled: got %v", err)
	}

	h.load(ogTest)
	h.svc.AddLineItem(t.Context(), cart.LineItem{ID: ogTest, Quantity: 3,
		Options: cart.Options{"Strap": "Fixed", "Engraving Count": "0"}})
	var (
		left cart.LineItem
		rerr error
	)
	req := cart.Options{"Strap": "Fixed", "Engraving Count": "7-8"}
	if err := h.ctrl.Remove(cart.LineItem{ID: ogTest, Quantity: 1, Options: req}, func(it cart.LineItem, err error) {
		left, rerr = it, err
	}); err != nil {
		t.Fatal(err)
	}
	h.sched.Advance(0)
	if rerr != nil || left.Quantity != 2 {
		t.Fatalf("remove: got %+v, %v; want 2 left", left, rerr)
	}
	if req["Engraving Count"] != "7-8" {
		t.Fatalf("caller's options modified: %v", req)
	}
}

func TestRemove_EngravedLineNotMatched(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.load(ogTest)
	h.svc.AddLineItem(t.Context(), cart.LineItem{ID: ogTest, Quantity: 2,
		Options: cart.Options{"Strap": "Fixed", "Engraving Count": "7-8"}})

	var rerr error
	if err := h.ctrl.Remove(cart.LineItem{ID: ogTest, Quantity: 1, Options: cart.Options{"Strap": "Fixed"}},
		func(_ cart.LineItem, err error) { rerr = err }); err != nil {
		t.Fatal(err)
	}
	h.sched.Advance(0)
	if !errors.Is(rerr, cart.ErrNotInCart) {
		t.Fatalf("remove engraved line: got %v, want ErrNotInCart", rerr)
	}
}

func TestProductIDFromLocation(t *testing.T) {
	cases := map[string]int64{
		"https://shop.example/store/Poles/p/793363376":         793363376,
		"/p/800767786?utm=x":                                   800767786,
		"https://shop.example/store/Poles/p/793363376/reviews": 793363376,
	}
	for loc, want := range cases {
		got, ok := ProductIDFromLocation(loc)
		if !ok || got != want {
			t.Fatalf("ProductIDFromLocation(%q): got %d, %v; want %d", loc, got, ok, want)
		}
	}
	if _, ok := ProductIDFromLocation("/store/c/12"); ok {
		t.Fatal("category path matched")
	}
}

func TestSetCatalog_AppliesOnNextPageLoad(t *testing.T) {
	h := newHarness(t, fixture.Ski("$150.00"))
	h.load(og)

	next := catalog.Builtin()
	p, err := next.Product(og)
	if err != nil {
		t.Fatal(err)
	}
	p.BasePrice = 175
	h.ctrl.SetCatalog(next)

	h.doc.Change(h.q(".details-product-option--Grip-Color select"), "Cork")
	h.sched.Advance(0)
	if got := h.price(); got != "$188.00" {
		t.Fatalf("active session price: got %q, want $188.00", got)
	}

	h.load(og)
	if got := h.price(); got != "$194.00" {
		t.Fatalf("price after reload: got %q, want $194.00", got)
	}
	if h.ctrl.Catalog() != next {
		t.Fatal("Catalog did not return the replacement")
	}
}
