package memdom

import "github.com/hazyhaar/optsync/dom"

type observer struct {
	doc       *Document
	target    *Element
	opts      dom.ObserveOptions
	cb        dom.MutationCallback
	pending   []dom.MutationRecord
	scheduled bool
	closed    bool
}

func (o *observer) Disconnect() {
	if o.closed {
		return
	}
	o.closed = true
	o.pending = nil
	obs := o.doc.observers[:0]
	for _, x := range o.doc.observers {
		if x != o {
			obs = append(obs, x)
		}
	}
	o.doc.observers = obs
}

func (o *observer) wants(rec dom.MutationRecord) bool {
	switch rec.Type {
	case dom.ChildList:
		if !o.opts.ChildList {
			return false
		}
	case dom.CharacterData:
		if !o.opts.CharacterData {
			return false
		}
	default:
		return false
	}
	t, ok := rec.Target.(*Element)
	if !ok {
		return false
	}
	if t == o.target {
		return true
	}
	if !o.opts.Subtree {
		return false
	}
	for p := t.n.Parent; p != nil; p = p.Parent {
		if p == o.target.n {
			return true
		}
	}
	return false
}

func (o *observer) flush() {
	o.scheduled = false
	if o.closed || len(o.pending) == 0 {
		return
	}
	batch := o.pending
	o.pending = nil
	o.cb(batch)
}

type nopObserver struct{}

func (nopObserver) Disconnect() {}

func (d *Document) Observe(target dom.Element, opts dom.ObserveOptions, cb dom.MutationCallback) dom.Observer {
	t, ok := target.(*Element)
	if !ok || t == nil {
		return nopObserver{}
	}
	o := &observer{doc: d, target: t, opts: opts, cb: cb}
	d.observers = append(d.observers, o)
	return o
}

// record queues rec for every interested observer and schedules delivery.
func (d *Document) record(rec dom.MutationRecord) {
	for _, o := range d.observers {
		if !o.wants(rec) {
			continue
		}
		o.pending = append(o.pending, rec)
		if !o.scheduled {
			o.scheduled = true
			d.sched.Post(o.flush)
		}
	}
}

// ObserverCount reports connected observers.
func (d *Document) ObserverCount() int { return len(d.observers) }
