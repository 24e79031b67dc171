package loop

import (
	"sort"
	"time"
)

// Manual is a deterministic Scheduler with a virtual clock. Nothing runs
// until the test drives it with RunPending or Advance. Posted callbacks always
// drain before any timer fires, mirroring microtasks before macrotasks.
type Manual struct {
	now    time.Duration
	posts  []func()
	timers []*manualTimer
	seq    int
}

// NewManual returns a Manual scheduler at virtual time zero.
func NewManual() *Manual { return &Manual{} }

type manualTimer struct {
	m       *Manual
	at      time.Duration
	seq     int
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	t.m.remove(t)
	return true
}

func (m *Manual) Post(fn func()) { m.posts = append(m.posts, fn) }

func (m *Manual) After(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{m: m, at: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at == m.timers[j].at {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at < m.timers[j].at
	})
	return t
}

// Now returns the virtual clock.
func (m *Manual) Now() time.Duration { return m.now }

// Pending reports the number of queued posts and live timers.
func (m *Manual) Pending() int { return len(m.posts) + len(m.timers) }

// RunPending drains posted callbacks, including ones posted while draining.
func (m *Manual) RunPending() {
	for len(m.posts) > 0 {
		fn := m.posts[0]
		m.posts = m.posts[1:]
		fn()
	}
}

// Advance moves the clock forward by d, firing due timers in order and
// draining posts after each one.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	m.RunPending()
	for len(m.timers) > 0 && m.timers[0].at <= target {
		t := m.timers[0]
		m.timers = m.timers[1:]
		t.stopped = true
		if t.at > m.now {
			m.now = t.at
		}
		t.fn()
		m.RunPending()
	}
	m.now = target
}

// Settle advances until no timer is left, bounded by limit to catch loops.
func (m *Manual) Settle(limit time.Duration) {
	deadline := m.now + limit
	m.RunPending()
	for len(m.timers) > 0 && m.timers[0].at <= deadline {
		m.Advance(m.timers[0].at - m.now)
	}
}

func (m *Manual) remove(t *manualTimer) {
	for i, x := range m.timers {
		if x == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}
