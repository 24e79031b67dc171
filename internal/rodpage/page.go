// Package rodpage exposes a live storefront tab as a dom.Document and the
// storefront cart as a cart.Service.
//
// An injected bridge script tags every element the engine touches with a
// data-optsync-id attribute and reports listener, observer and page-loaded
// callbacks through one Runtime binding. Callbacks are posted to the loop;
// DOM calls are synchronous DevTools round trips made from the loop.
package rodpage

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/optsync/dom"
	"github.com/hazyhaar/optsync/loop"
	"github.com/hazyhaar/optsync/session"
)

// Bridge is the script installed in every document of the tab.
//
//go:embed bridge.js
var Bridge string

// BindingName is the Runtime binding the bridge reports through.
const BindingName = "__optsyncEmit"

// Page is a storefront tab.
type Page struct {
	page  *rod.Page
	sched loop.Scheduler
	log   *slog.Logger

	onPage func(session.Page)

	seq       int
	listeners map[string]dom.Listener
	observers map[string]dom.MutationCallback
}

var _ dom.Document = (*Page)(nil)

func newPage(page *rod.Page, sched loop.Scheduler, logger *slog.Logger) *Page {
	if logger == nil {
		logger = slog.Default()
	}
	return &Page{
		page:      page,
		sched:     sched,
		log:       logger,
		listeners: make(map[string]dom.Listener),
		observers: make(map[string]dom.MutationCallback),
	}
}

// Attach installs the binding and the bridge on page and starts delivering
// callbacks to sched until ctx ends. The bridge should also be passed to
// the tab as an init script so it survives navigations.
func Attach(ctx context.Context, page *rod.Page, sched loop.Scheduler, logger *slog.Logger) (*Page, error) {
	p := newPage(page, sched, logger)

	wait := page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == BindingName {
			p.receive([]byte(e.Payload))
		}
	})
	go wait()

	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(page); err != nil {
		return nil, fmt.Errorf("rodpage: add binding: %w", err)
	}
	if _, err := page.Eval(`() => {` + Bridge + `}`); err != nil {
		return nil, fmt.Errorf("rodpage: install bridge: %w", err)
	}
	return p, nil
}

// OnPageLoaded registers fn for the storefront's page-loaded notifications.
// fn runs on the loop.
func (p *Page) OnPageLoaded(fn func(session.Page)) { p.onPage = fn }

// Rod returns the underlying page.
func (p *Page) Rod() *rod.Page { return p.page }

func (p *Page) nextID(prefix string) string {
	p.seq++
	return prefix + strconv.Itoa(p.seq)
}

// call runs window.__optsync[fn](args...) and returns its JSON result.
func (p *Page) call(fn string, args ...any) (*proto.RuntimeRemoteObject, error) {
	res, err := p.page.Eval(`(...a) => window.__optsync.`+fn+`(...a)`, args...)
	if err != nil {
		p.log.Debug("rodpage: bridge call failed", "fn", fn, "error", err)
		return nil, err
	}
	return res, nil
}

func (p *Page) str(fn string, args ...any) string {
	res, err := p.call(fn, args...)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (p *Page) truth(fn string, args ...any) bool {
	res, err := p.call(fn, args...)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (p *Page) exec(fn string, args ...any) { p.call(fn, args...) }

// elem wraps an id returned by the bridge. An empty id is a nil Element.
func (p *Page) elem(id string) dom.Element {
	if id == "" {
		return nil
	}
	return &Element{p: p, id: id}
}

func (p *Page) elems(fn string, args ...any) []dom.Element {
	res, err := p.call(fn, args...)
	if err != nil {
		return nil
	}
	var out []dom.Element
	for _, v := range res.Value.Arr() {
		if el := p.elem(v.Str()); el != nil {
			out = append(out, el)
		}
	}
	return out
}

func (p *Page) QuerySelector(selector string) dom.Element {
	return p.elem(p.str("find", "", selector))
}

func (p *Page) QuerySelectorAll(selector string) []dom.Element {
	return p.elems("findAll", "", selector)
}

func (p *Page) Body() dom.Element { return p.elem(p.str("body")) }

func (p *Page) CreateElement(tag string) dom.Element { return p.elem(p.str("create", tag)) }

func (p *Page) Location() string { return p.str("location") }

func (p *Page) Hidden() bool { return p.truth("hidden") }

func (p *Page) AddEventListener(typ string, fn dom.Listener) func() {
	return p.listen("", typ, fn, dom.ListenerOptions{})
}

func (p *Page) listen(target, typ string, fn dom.Listener, opts dom.ListenerOptions) func() {
	lid := p.nextID("l")
	p.listeners[lid] = fn
	if !p.truth("listen", target, typ, lid, opts.Capture, opts.Exclusive) {
		p.log.Debug("rodpage: listen on detached element", "element", target, "event", typ)
	}
	return func() {
		if _, ok := p.listeners[lid]; !ok {
			return
		}
		delete(p.listeners, lid)
		p.exec("unlisten", lid)
	}
}

type observer struct {
	p   *Page
	oid string
}

func (o *observer) Disconnect() {
	if _, ok := o.p.observers[o.oid]; !ok {
		return
	}
	delete(o.p.observers, o.oid)
	o.p.exec("disconnect", o.oid)
}

func (p *Page) Observe(target dom.Element, opts dom.ObserveOptions, cb dom.MutationCallback) dom.Observer {
	oid := p.nextID("o")
	p.observers[oid] = cb
	if !p.truth("observe", target.ID(), oid, opts.ChildList, opts.CharacterData, opts.Subtree) {
		p.log.Debug("rodpage: observe detached element", "element", target.ID())
	}
	return &observer{p: p, oid: oid}
}

// message is one bridge report.
type message struct {
	Kind    string        `json:"kind"`
	LID     string        `json:"lid"`
	Type    string        `json:"type"`
	Target  string        `json:"target"`
	OID     string        `json:"oid"`
	Records []wireRecord  `json:"records"`
	Page    *session.Page `json:"page"`
}

type wireRecord struct {
	Type    string   `json:"type"`
	Target  string   `json:"target"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// receive runs on the CDP event goroutine.
func (p *Page) receive(payload []byte) {
	var m message
	if err := json.Unmarshal(payload, &m); err != nil {
		p.log.Warn("rodpage: bad bridge message", "error", err)
		return
	}
	p.sched.Post(func() { p.deliver(m) })
}

func (p *Page) deliver(m message) {
	switch m.Kind {
	case "event":
		fn, ok := p.listeners[m.LID]
		if !ok {
			return
		}
		fn(dom.NewEvent(m.Type, p.elem(m.Target)))
	case "mutation":
		cb, ok := p.observers[m.OID]
		if !ok {
			return
		}
		recs := make([]dom.MutationRecord, 0, len(m.Records))
		for _, r := range m.Records {
			recs = append(recs, dom.MutationRecord{
				Type:    r.Type,
				Target:  p.elem(r.Target),
				Added:   p.wrapAll(r.Added),
				Removed: p.wrapAll(r.Removed),
			})
		}
		cb(recs)
	case "page":
		if p.onPage != nil && m.Page != nil {
			p.onPage(*m.Page)
		}
	default:
		p.log.Debug("rodpage: unknown bridge message", "kind", m.Kind)
	}
}

func (p *Page) wrapAll(ids []string) []dom.Element {
	out := make([]dom.Element, 0, len(ids))
	for _, id := range ids {
		if el := p.elem(id); el != nil {
			out = append(out, el)
		}
	}
	return out
}
