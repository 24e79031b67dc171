package rodpage

import (
	"github.com/hazyhaar/optsync/dom"
)

// Element is a node tagged by the bridge.
type Element struct {
	p  *Page
	id string
}

var _ dom.Element = (*Element)(nil)

func (e *Element) ID() string { return e.id }

func (e *Element) Matches(selector string) bool { return e.p.truth("matches", e.id, selector) }

func (e *Element) QuerySelector(selector string) dom.Element {
	return e.p.elem(e.p.str("find", e.id, selector))
}

func (e *Element) QuerySelectorAll(selector string) []dom.Element {
	return e.p.elems("findAll", e.id, selector)
}

func (e *Element) Closest(selector string) dom.Element {
	return e.p.elem(e.p.str("closest", e.id, selector))
}

func (e *Element) Connected() bool { return e.p.truth("connected", e.id) }

func (e *Element) Value() string { return e.p.str("value", e.id) }

func (e *Element) SetValue(v string) { e.p.exec("setValue", e.id, v) }

func (e *Element) Text() string { return e.p.str("text", e.id) }

func (e *Element) SetText(s string) { e.p.exec("setText", e.id, s) }

func (e *Element) Attr(name string) (string, bool) {
	res, err := e.p.call("attr", e.id, name)
	if err != nil || res.Value.Nil() {
		return "", false
	}
	return res.Value.Str(), true
}

func (e *Element) SetAttr(name, value string) { e.p.exec("setAttr", e.id, name, value) }

func (e *Element) SetStyle(property, value string) { e.p.exec("setStyle", e.id, property, value) }

func (e *Element) AppendChild(child dom.Element) { e.p.exec("append", e.id, child.ID()) }

func (e *Element) Remove() { e.p.exec("remove", e.id) }

func (e *Element) CloneReplace() dom.Element { return e.p.elem(e.p.str("cloneReplace", e.id)) }

func (e *Element) Focus() { e.p.exec("focus", e.id) }

func (e *Element) ScrollIntoView() { e.p.exec("scrollIntoView", e.id) }

func (e *Element) AddEventListener(typ string, fn dom.Listener, opts dom.ListenerOptions) func() {
	return e.p.listen(e.id, typ, fn, opts)
}
