// Package resilience keeps the engine attached to a page the storefront keeps
// re-rendering: mutation observers for the price and for structural churn, a
// coalescing debouncer, a bounded element wait and panic containment for
// every callback.
package resilience

import (
	"log/slog"
	"time"

	"github.com/hazyhaar/optsync/loop"
)

// Debouncer runs keyed tasks after a quiet period. Scheduling a key that is
// already pending replaces the pending task and restarts its window, so a
// burst of requests runs once.
type Debouncer struct {
	sched   loop.Scheduler
	delay   time.Duration
	pending map[string]loop.Timer
}

// NewDebouncer returns a Debouncer with the given window.
func NewDebouncer(sched loop.Scheduler, delay time.Duration) *Debouncer {
	return &Debouncer{sched: sched, delay: delay, pending: make(map[string]loop.Timer)}
}

// Schedule queues fn under key, replacing any pending task for key.
func (d *Debouncer) Schedule(key string, fn func()) {
	if t, ok := d.pending[key]; ok {
		t.Stop()
	}
	var self loop.Timer
	self = d.sched.After(d.delay, func() {
		if d.pending[key] == self {
			delete(d.pending, key)
		}
		fn()
	})
	d.pending[key] = self
}

// Pending reports whether key has a queued task.
func (d *Debouncer) Pending(key string) bool {
	_, ok := d.pending[key]
	return ok
}

// Cancel drops the pending task for key.
func (d *Debouncer) Cancel(key string) {
	if t, ok := d.pending[key]; ok {
		t.Stop()
		delete(d.pending, key)
	}
}

// Stop drops every pending task.
func (d *Debouncer) Stop() {
	for k, t := range d.pending {
		t.Stop()
		delete(d.pending, k)
	}
}

// Safe runs fn and recovers a panic, logging it under where. It reports
// whether fn returned normally.
func Safe(logger *slog.Logger, where string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("resilience: callback panicked", "where", where, "panic", r)
			ok = false
		}
	}()
	fn()
	return true
}
