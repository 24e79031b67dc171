package memdom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/optsync/dom"
)

// Element wraps one html.Node. The wrapper is cached per node so identity
// and listeners survive repeated queries.
type Element struct {
	doc       *Document
	n         *html.Node
	id        string
	listeners map[string][]*listener
}

var _ dom.Element = (*Element)(nil)

type listener struct {
	fn      dom.Listener
	opts    dom.ListenerOptions
	removed bool
}

type phase int

const (
	phaseCapture phase = iota
	phaseTarget
	phaseBubble
)

func (e *Element) ID() string { return e.id }

func (e *Element) Matches(selector string) bool {
	if e.n.Type != html.ElementNode {
		return false
	}
	s := e.doc.compile(selector)
	return s != nil && s.Match(e.n)
}

func (e *Element) QuerySelector(selector string) dom.Element { return e.doc.query(e.n, selector) }

func (e *Element) QuerySelectorAll(selector string) []dom.Element {
	return e.doc.queryAll(e.n, selector)
}

func (e *Element) Closest(selector string) dom.Element {
	for p := e.n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if w := e.doc.wrap(p); w.Matches(selector) {
			return w
		}
	}
	return nil
}

func (e *Element) Connected() bool { return e.doc.connected(e.n) }

func (e *Element) Value() string {
	switch e.n.DataAtom {
	case atom.Select:
		var first *html.Node
		for _, o := range optionNodes(e.n) {
			if first == nil {
				first = o
			}
			if _, ok := getAttr(o, "selected"); ok {
				return optionValue(o)
			}
		}
		if first != nil {
			return optionValue(first)
		}
		return ""
	case atom.Textarea:
		return textContent(e.n)
	default:
		v, _ := getAttr(e.n, "value")
		return v
	}
}

func (e *Element) SetValue(v string) {
	switch e.n.DataAtom {
	case atom.Select:
		for _, o := range optionNodes(e.n) {
			if optionValue(o) == v {
				setAttr(o, "selected", "")
			} else {
				removeAttr(o, "selected")
			}
		}
	case atom.Textarea:
		replaceChildren(e.n, v)
	default:
		setAttr(e.n, "value", v)
	}
}

func (e *Element) Text() string { return textContent(e.n) }

func (e *Element) SetText(s string) {
	var removed []dom.Element
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		removed = append(removed, e.doc.wrap(c))
	}
	added := replaceChildren(e.n, s)
	rec := dom.MutationRecord{Type: dom.ChildList, Target: e, Removed: removed}
	if added != nil {
		rec.Added = []dom.Element{e.doc.wrap(added)}
	}
	e.doc.record(rec)
}

func (e *Element) Attr(name string) (string, bool) { return getAttr(e.n, name) }

func (e *Element) SetAttr(name, value string) { setAttr(e.n, name, value) }

// Style returns one inline style property.
func (e *Element) Style(property string) string {
	raw, _ := getAttr(e.n, "style")
	for _, decl := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(k) == property {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (e *Element) SetStyle(property, value string) {
	raw, _ := getAttr(e.n, "style")
	var decls []string
	for _, decl := range strings.Split(raw, ";") {
		k, _, ok := strings.Cut(decl, ":")
		if !ok || strings.TrimSpace(k) == property {
			continue
		}
		decls = append(decls, strings.TrimSpace(decl))
	}
	if value != "" {
		decls = append(decls, property+": "+value)
	}
	if len(decls) == 0 {
		removeAttr(e.n, "style")
		return
	}
	setAttr(e.n, "style", strings.Join(decls, "; "))
}

func (e *Element) AppendChild(child dom.Element) {
	c, ok := child.(*Element)
	if !ok {
		return
	}
	if c.n.Parent != nil {
		c.Remove()
	}
	e.n.AppendChild(c.n)
	e.doc.record(dom.MutationRecord{Type: dom.ChildList, Target: e, Added: []dom.Element{c}})
}

func (e *Element) Remove() {
	parent := e.n.Parent
	if parent == nil {
		return
	}
	parent.RemoveChild(e.n)
	e.doc.record(dom.MutationRecord{Type: dom.ChildList, Target: e.doc.wrap(parent), Removed: []dom.Element{e}})
}

func (e *Element) CloneReplace() dom.Element {
	parent := e.n.Parent
	clone := cloneNode(e.n)
	if parent == nil {
		return e.doc.wrap(clone)
	}
	parent.InsertBefore(clone, e.n)
	parent.RemoveChild(e.n)
	c := e.doc.wrap(clone)
	e.doc.record(dom.MutationRecord{Type: dom.ChildList, Target: e.doc.wrap(parent), Added: []dom.Element{c}, Removed: []dom.Element{e}})
	return c
}

func (e *Element) Focus() {
	if e.doc.focused == e {
		return
	}
	e.doc.Blur()
	e.doc.focused = e
	e.doc.Dispatch(e, "focus")
}

func (e *Element) ScrollIntoView() { e.doc.scrolledTo = e }

func (e *Element) AddEventListener(typ string, fn dom.Listener, opts dom.ListenerOptions) func() {
	l := &listener{fn: fn, opts: opts}
	e.listeners[typ] = append(e.listeners[typ], l)
	return func() {
		l.removed = true
		e.listeners[typ] = removeListener(e.listeners[typ], l)
	}
}

// ListenerCount reports attached listeners for typ.
func (e *Element) ListenerCount(typ string) int { return len(e.listeners[typ]) }

func (e *Element) fire(ev *dom.Event, p phase) {
	for _, l := range append([]*listener(nil), e.listeners[ev.Type]...) {
		if l.removed {
			continue
		}
		switch p {
		case phaseCapture:
			if !l.opts.Capture {
				continue
			}
		case phaseBubble:
			if l.opts.Capture {
				continue
			}
		}
		if l.opts.Exclusive {
			ev.PreventDefault()
			ev.StopPropagation()
		}
		l.fn(ev)
	}
}

func removeListener(ls []*listener, l *listener) []*listener {
	for i, x := range ls {
		if x == l {
			return append(ls[:i:i], ls[i+1:]...)
		}
	}
	return ls
}

func getAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

// replaceChildren drops every child of n and appends one text node. It
// returns the text node, or nil for an empty string.
func replaceChildren(n *html.Node, s string) *html.Node {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if s == "" {
		return nil
	}
	t := &html.Node{Type: html.TextNode, Data: s}
	n.AppendChild(t)
	return t
}

func optionNodes(sel *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Option {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(sel)
	return out
}

func optionValue(o *html.Node) string {
	if v, ok := getAttr(o, "value"); ok {
		return v
	}
	return strings.TrimSpace(textContent(o))
}

func cloneNode(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(cloneNode(ch))
	}
	return c
}
