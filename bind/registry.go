// Package bind attaches the engine to option widgets: it wires listeners
// that feed the option store, writes the derived price into the page and
// takes over the storefront's add-to-cart buttons.
package bind

import (
	"github.com/hazyhaar/optsync/dom"
)

type regKey struct {
	element string
	event   string
}

type regEntry struct {
	el     dom.Element
	detach func()
}

// Registry records which (element, event) pairs carry an engine listener.
// A pair is never bound twice while its entry exists.
type Registry struct {
	entries map[regKey]regEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[regKey]regEntry)}
}

// Bound reports whether el already carries a listener for event.
func (r *Registry) Bound(el dom.Element, event string) bool {
	_, ok := r.entries[regKey{el.ID(), event}]
	return ok
}

// Bind attaches fn unless the pair is already bound. It reports whether a
// listener was attached.
func (r *Registry) Bind(el dom.Element, event string, fn dom.Listener, opts dom.ListenerOptions) bool {
	k := regKey{el.ID(), event}
	if _, ok := r.entries[k]; ok {
		return false
	}
	r.entries[k] = regEntry{el: el, detach: el.AddEventListener(event, fn, opts)}
	return true
}

// Prune drops entries of elements the page has removed.
func (r *Registry) Prune() int {
	n := 0
	for k, e := range r.entries {
		if !e.el.Connected() {
			e.detach()
			delete(r.entries, k)
			n++
		}
	}
	return n
}

// Clear detaches every listener and empties the registry.
func (r *Registry) Clear() {
	for k, e := range r.entries {
		e.detach()
		delete(r.entries, k)
	}
}

// Len reports the number of bound pairs.
func (r *Registry) Len() int { return len(r.entries) }
