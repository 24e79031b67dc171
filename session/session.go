// Package session owns one product-page activation: the catalog entry, the
// option store, the listener registry and the observer set. The Controller
// creates a Session when the storefront reports an allow-listed product page
// and destroys it when the user navigates elsewhere.
package session

import (
	"regexp"
	"strconv"

	"github.com/hazyhaar/optsync/bind"
	"github.com/hazyhaar/optsync/cart"
	"github.com/hazyhaar/optsync/catalog"
	"github.com/hazyhaar/optsync/optstate"
	"github.com/hazyhaar/optsync/resilience"
)

// PageProduct is the page type of a product detail page.
const PageProduct = "PRODUCT"

// Page describes the page the storefront just rendered.
type Page struct {
	Type      string `json:"type"`
	ProductID int64  `json:"productId"`
}

// State is the lifecycle stage of a Session.
type State string

const (
	StateWaiting  State = "waiting"  // polling for the option widgets
	StateActive   State = "active"   // bound and observing
	StateDegraded State = "degraded" // widgets never appeared; no price sync
)

// Session is the context of one product-page activation.
type Session struct {
	ID      string
	Product *catalog.Product

	state      State
	store      *optstate.Store
	registry   *bind.Registry
	display    *bind.PriceDisplay
	binder     *bind.Binder
	observers  resilience.ObserverSet
	price      *resilience.PriceObserver
	structural *resilience.StructuralObserver
	debounce   *resilience.Debouncer
	submitter  *cart.Submitter
	cancelWait func()
}

// State returns the lifecycle stage.
func (s *Session) State() State { return s.state }

// Store returns the current option store. Recovery replaces it.
func (s *Session) Store() *optstate.Store { return s.store }

// Registry returns the listener registry.
func (s *Session) Registry() *bind.Registry { return s.registry }

// Status is a point-in-time view of a session.
type Status struct {
	SessionID string            `json:"session_id"`
	ProductID int64             `json:"product_id"`
	Product   string            `json:"product"`
	State     State             `json:"state"`
	Displayed string            `json:"displayed"`
	Bindings  int               `json:"bindings"`
	Options   optstate.Snapshot `json:"options"`
}

func (s *Session) status() Status {
	st := Status{
		SessionID: s.ID,
		ProductID: s.Product.ID,
		Product:   s.Product.Name,
		State:     s.state,
		Bindings:  s.registry.Len(),
		Options:   s.store.Snapshot(),
	}
	if el := s.display.Element(); el != nil {
		st.Displayed = el.Text()
	}
	return st
}

var productPath = regexp.MustCompile(`/p/(\d+)`)

// ProductIDFromLocation extracts the product id of a ".../p/<digits>" URL.
func ProductIDFromLocation(loc string) (int64, bool) {
	m := productPath.FindStringSubmatch(loc)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
