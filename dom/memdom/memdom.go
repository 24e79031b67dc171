// Package memdom is an in-memory dom.Document over golang.org/x/net/html
// nodes with cascadia selector matching. Events dispatch synchronously with
// capture and bubble phases. Mutation records are batched and delivered on
// the scheduler, the way a browser delivers them after the current task.
package memdom

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/optsync/dom"
	"github.com/hazyhaar/optsync/loop"
)

// Document is an in-memory page.
type Document struct {
	root  *html.Node
	sched loop.Scheduler

	elems     map[*html.Node]*Element
	nextID    int
	selectors map[string]cascadia.Sel

	docListeners map[string][]*listener
	observers    []*observer

	location   string
	hidden     bool
	focused    *Element
	scrolledTo *Element
}

var _ dom.Document = (*Document)(nil)

// Parse builds a document from markup.
func Parse(markup string, sched loop.Scheduler) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("memdom: parse: %w", err)
	}
	return &Document{
		root:         root,
		sched:        sched,
		elems:        make(map[*html.Node]*Element),
		selectors:    make(map[string]cascadia.Sel),
		docListeners: make(map[string][]*listener),
		location:     "/",
	}, nil
}

func (d *Document) compile(selector string) cascadia.Sel {
	if s, ok := d.selectors[selector]; ok {
		return s
	}
	s, err := cascadia.Parse(selector)
	if err != nil {
		s = nil
	}
	d.selectors[selector] = s
	return s
}

func (d *Document) wrap(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	if e, ok := d.elems[n]; ok {
		return e
	}
	d.nextID++
	e := &Element{doc: d, n: n, id: fmt.Sprintf("n%d", d.nextID), listeners: make(map[string][]*listener)}
	d.elems[n] = e
	return e
}

func (d *Document) query(n *html.Node, selector string) dom.Element {
	s := d.compile(selector)
	if s == nil {
		return nil
	}
	if m := cascadia.Query(n, s); m != nil {
		return d.wrap(m)
	}
	return nil
}

func (d *Document) queryAll(n *html.Node, selector string) []dom.Element {
	s := d.compile(selector)
	if s == nil {
		return nil
	}
	var out []dom.Element
	for _, m := range cascadia.QueryAll(n, s) {
		out = append(out, d.wrap(m))
	}
	return out
}

func (d *Document) QuerySelector(selector string) dom.Element { return d.query(d.root, selector) }

func (d *Document) QuerySelectorAll(selector string) []dom.Element {
	return d.queryAll(d.root, selector)
}

func (d *Document) Body() dom.Element {
	if b := d.query(d.root, "body"); b != nil {
		return b
	}
	return nil
}

func (d *Document) CreateElement(tag string) dom.Element {
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	return d.wrap(n)
}

func (d *Document) Location() string { return d.location }

func (d *Document) Hidden() bool { return d.hidden }

func (d *Document) AddEventListener(typ string, fn dom.Listener) func() {
	l := &listener{fn: fn}
	d.docListeners[typ] = append(d.docListeners[typ], l)
	return func() {
		l.removed = true
		d.docListeners[typ] = removeListener(d.docListeners[typ], l)
	}
}

// SetLocation changes the URL path without any event, as an SPA router does.
func (d *Document) SetLocation(path string) { d.location = path }

// SetHidden changes visibility and fires visibilitychange on the document.
func (d *Document) SetHidden(hidden bool) {
	if d.hidden == hidden {
		return
	}
	d.hidden = hidden
	ev := dom.NewEvent("visibilitychange", nil)
	for _, l := range append([]*listener(nil), d.docListeners["visibilitychange"]...) {
		if !l.removed {
			l.fn(ev)
		}
	}
}

// DocListenerCount reports listeners attached to the document for typ.
func (d *Document) DocListenerCount(typ string) int { return len(d.docListeners[typ]) }

// Focused returns the element that last received focus.
func (d *Document) Focused() dom.Element {
	if d.focused == nil {
		return nil
	}
	return d.focused
}

// ScrolledTo returns the element last scrolled into view.
func (d *Document) ScrolledTo() dom.Element {
	if d.scrolledTo == nil {
		return nil
	}
	return d.scrolledTo
}

// Dispatch fires typ at target through capture, target and bubble phases.
// It reports whether a listener prevented the default action.
func (d *Document) Dispatch(target dom.Element, typ string) bool {
	t, ok := target.(*Element)
	if !ok || t == nil {
		return false
	}
	ev := dom.NewEvent(typ, t)
	bubbles := typ != "focus" && typ != "blur"

	var path []*Element
	for p := t.n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			path = append(path, d.wrap(p))
		}
	}

	for i := len(path) - 1; i >= 0 && !ev.PropagationStopped(); i-- {
		path[i].fire(ev, phaseCapture)
	}
	if !ev.PropagationStopped() {
		t.fire(ev, phaseTarget)
	}
	if bubbles {
		for _, p := range path {
			if ev.PropagationStopped() {
				break
			}
			p.fire(ev, phaseBubble)
		}
	}
	return ev.DefaultPrevented()
}

// Input sets a text field's value and fires input, as typing does.
func (d *Document) Input(el dom.Element, value string) {
	el.SetValue(value)
	d.Dispatch(el, "input")
}

// Change sets a field's value and fires change.
func (d *Document) Change(el dom.Element, value string) {
	el.SetValue(value)
	d.Dispatch(el, "change")
}

// Check selects a radio input, unchecks its siblings by name and fires
// change from the input so it bubbles to the group container.
func (d *Document) Check(el dom.Element) {
	e, ok := el.(*Element)
	if !ok {
		return
	}
	name, _ := e.Attr("name")
	for _, other := range d.QuerySelectorAll(fmt.Sprintf("input[type='radio'][name=%q]", name)) {
		o := other.(*Element)
		removeAttr(o.n, "checked")
	}
	setAttr(e.n, "checked", "")
	d.Dispatch(e, "change")
}

// Click fires click at el and reports whether the default was prevented.
func (d *Document) Click(el dom.Element) bool { return d.Dispatch(el, "click") }

// Blur fires blur at the focused element.
func (d *Document) Blur() {
	if f := d.focused; f != nil {
		d.focused = nil
		d.Dispatch(f, "blur")
	}
}

// ReplaceWith swaps old for the nodes parsed from fragment in one mutation,
// the way the storefront re-renders a widget.
func (d *Document) ReplaceWith(old dom.Element, fragment string) ([]dom.Element, error) {
	o, ok := old.(*Element)
	if !ok || o.n.Parent == nil {
		return nil, fmt.Errorf("memdom: replace: element not attached")
	}
	parent := o.n.Parent
	nodes, err := html.ParseFragment(strings.NewReader(fragment), contextNode(parent))
	if err != nil {
		return nil, fmt.Errorf("memdom: replace: %w", err)
	}
	var added []dom.Element
	for _, n := range nodes {
		parent.InsertBefore(n, o.n)
		added = append(added, d.wrap(n))
	}
	parent.RemoveChild(o.n)
	d.record(dom.MutationRecord{Type: dom.ChildList, Target: d.wrap(parent), Added: added, Removed: []dom.Element{o}})
	return added, nil
}

// Insert appends the nodes parsed from fragment to parent in one mutation.
func (d *Document) Insert(parent dom.Element, fragment string) ([]dom.Element, error) {
	p, ok := parent.(*Element)
	if !ok {
		return nil, fmt.Errorf("memdom: insert: foreign element")
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), contextNode(p.n))
	if err != nil {
		return nil, fmt.Errorf("memdom: insert: %w", err)
	}
	var added []dom.Element
	for _, n := range nodes {
		p.n.AppendChild(n)
		added = append(added, d.wrap(n))
	}
	d.record(dom.MutationRecord{Type: dom.ChildList, Target: p, Added: added})
	return added, nil
}

// SetTextData rewrites the first text node under el in place, producing a
// characterData record the way a host framework patches a price.
func (d *Document) SetTextData(el dom.Element, s string) {
	e, ok := el.(*Element)
	if !ok {
		return
	}
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			c.Data = s
			d.record(dom.MutationRecord{Type: dom.CharacterData, Target: d.wrap(c)})
			return
		}
	}
	e.SetText(s)
}

func contextNode(parent *html.Node) *html.Node {
	if parent.Type == html.ElementNode {
		return parent
	}
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

func (d *Document) connected(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}
