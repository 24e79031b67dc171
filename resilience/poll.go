package resilience

import (
	"errors"
	"time"

	"github.com/hazyhaar/optsync/loop"
)

// ErrTimeout is reported when a poll exhausts its attempts.
var ErrTimeout = errors.New("resilience: timed out waiting for elements")

// PollConfig bounds a Poll.
type PollConfig struct {
	// Interval between checks. Default: 100ms.
	Interval time.Duration
	// Attempts is the number of checks before giving up. Default: 50.
	Attempts int
}

func (c *PollConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = 100 * time.Millisecond
	}
	if c.Attempts <= 0 {
		c.Attempts = 50
	}
}

// Poll checks ready on the loop, first on the next tick and then every
// Interval, until it returns true or Attempts checks have failed. done runs
// exactly once with nil or ErrTimeout, unless the returned cancel runs first.
func Poll(sched loop.Scheduler, cfg PollConfig, ready func() bool, done func(error)) (cancel func()) {
	cfg.defaults()
	var (
		attempts int
		timer    loop.Timer
		stopped  bool
	)
	var check func()
	check = func() {
		if stopped {
			return
		}
		attempts++
		if ready() {
			stopped = true
			done(nil)
			return
		}
		if attempts >= cfg.Attempts {
			stopped = true
			done(ErrTimeout)
			return
		}
		timer = sched.After(cfg.Interval, check)
	}
	sched.Post(check)

	return func() {
		if stopped {
			return
		}
		stopped = true
		if timer != nil {
			timer.Stop()
		}
	}
}
