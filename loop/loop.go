// Package loop provides the single cooperative thread every optsync
// component runs on. DOM events, mutation deliveries and timer callbacks are
// all queued here, so handlers never interleave and no locks are needed
// around option state.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Scheduler defers work onto the loop. Post is the microtask queue, After the
// timer queue. Callbacks always run on the loop goroutine.
type Scheduler interface {
	Post(fn func())
	After(d time.Duration, fn func()) Timer
}

// Timer is a pending After callback.
type Timer interface {
	// Stop cancels the callback. It reports false if the callback already ran
	// or was already stopped.
	Stop() bool
}

// ErrStopped is returned by Call once the loop has exited.
var ErrStopped = errors.New("loop: stopped")

// Loop is a Scheduler backed by one goroutine. The queue is unbounded so a
// callback may post to its own loop without deadlocking.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
	logger  *slog.Logger
}

// New creates a Loop. Call Run to start processing.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Post queues fn. Posting to a stopped loop drops fn.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// After runs fn on the loop once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.fire() {
				fn()
			}
		})
	})
	return t
}

// Call runs fn on the loop and waits for it to return. Used by callers that
// live outside the loop (admin handlers, tests) to read state safely.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	l.Post(func() {
		fn()
		close(ran)
	})
	select {
	case <-ran:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes queued callbacks until ctx is cancelled. A panicking
// callback is logged and does not stop the loop.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			if ctx.Err() != nil {
				return
			}
			l.run(fn)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop: callback panicked", "panic", r)
		}
	}()
	fn()
}

type loopTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	settled bool
}

// fire marks the timer as run. It reports false if Stop won the race.
func (t *loopTimer) fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.settled {
		return false
	}
	t.settled = true
	return true
}

func (t *loopTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.settled {
		return false
	}
	t.settled = true
	t.timer.Stop()
	return true
}
