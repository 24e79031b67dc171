// Package dom is the narrow view of a storefront page the engine works
// against. Two implementations exist: memdom (in-memory, deterministic) and
// rodpage (a live Chrome tab).
//
// Every method is called from the loop goroutine. Listener and observer
// callbacks are delivered on the loop goroutine too.
package dom

// Element is a live node of the page.
type Element interface {
	// ID is stable for the lifetime of the node. A replaced node gets a new ID.
	ID() string
	Matches(selector string) bool
	QuerySelector(selector string) Element
	QuerySelectorAll(selector string) []Element
	// Closest returns the nearest ancestor (or the element itself) matching
	// selector, or nil.
	Closest(selector string) Element
	// Connected reports whether the node is still attached to the document.
	Connected() bool

	Value() string
	SetValue(v string)
	Text() string
	SetText(s string)
	Attr(name string) (string, bool)
	SetAttr(name, value string)
	SetStyle(property, value string)

	AppendChild(child Element)
	Remove()
	// CloneReplace deep-clones the node without its listeners, swaps the
	// clone in, and returns it.
	CloneReplace() Element

	Focus()
	ScrollIntoView()

	// AddEventListener attaches fn and returns the function that detaches it.
	AddEventListener(typ string, fn Listener, opts ListenerOptions) (remove func())
}

// Document is the page.
type Document interface {
	QuerySelector(selector string) Element
	QuerySelectorAll(selector string) []Element
	Body() Element
	CreateElement(tag string) Element

	// Location is the current URL path.
	Location() string
	Hidden() bool

	// AddEventListener listens on the document itself (visibilitychange).
	AddEventListener(typ string, fn Listener) (remove func())
	Observe(target Element, opts ObserveOptions, cb MutationCallback) Observer
}

// Listener handles one dispatched event.
type Listener func(ev *Event)

// ListenerOptions mirror addEventListener's options.
type ListenerOptions struct {
	Capture bool
	// Exclusive listeners prevent the default action and stop propagation
	// before fn runs. Live pages need this decided up front because the
	// Go side only sees the event after dispatch.
	Exclusive bool
}

// Event is a dispatched DOM event.
type Event struct {
	Type   string
	Target Element

	defaultPrevented bool
	stopped          bool
}

// NewEvent builds an event for dispatch.
func NewEvent(typ string, target Element) *Event {
	return &Event{Type: typ, Target: target}
}

func (e *Event) PreventDefault()        { e.defaultPrevented = true }
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }
func (e *Event) StopPropagation()       { e.stopped = true }
func (e *Event) PropagationStopped() bool {
	return e.stopped
}

// Mutation record types.
const (
	ChildList     = "childList"
	CharacterData = "characterData"
	Attributes    = "attributes"
)

// MutationRecord describes one change, as MutationObserver reports it.
type MutationRecord struct {
	Type    string
	Target  Element
	Added   []Element
	Removed []Element
}

// ObserveOptions select which changes are reported.
type ObserveOptions struct {
	ChildList     bool
	CharacterData bool
	Subtree       bool
}

// MutationCallback receives one batch of records.
type MutationCallback func(records []MutationRecord)

// Observer is an active mutation observer.
type Observer interface {
	Disconnect()
}
