// Package journal records what the engine did on a storefront page: sessions
// started, prices corrected, rebinds, recoveries and cart outcomes. Events are
// fanned out to sinks (stdout JSON lines, webhook, in-process callback) from
// a background writer so the event loop never blocks on delivery.
package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/optsync/idgen"
)

// Kind names an engine event.
type Kind string

const (
	KindSessionStarted Kind = "session_started"
	KindSessionEnded   Kind = "session_ended"
	KindWaitTimeout    Kind = "wait_timeout"
	KindOptionChanged  Kind = "option_changed"
	KindPriceCorrected Kind = "price_corrected"
	KindRebind         Kind = "rebind"
	KindRecovered      Kind = "recovered"
	KindRecoveryFailed Kind = "recovery_failed"
	KindValidation     Kind = "validation_failed"
	KindCartAdded      Kind = "cart_added"
	KindCartFailed     Kind = "cart_failed"
	KindCartRemoved    Kind = "cart_removed"
)

// Event is one journal entry.
type Event struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id,omitempty"`
	ProductID int64             `json:"product_id,omitempty"`
	Kind      Kind              `json:"kind"`
	Price     float64           `json:"price,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp int64             `json:"timestamp"` // epoch milliseconds
}

// Recorder accepts events. Record never blocks.
type Recorder interface {
	Record(ev Event)
}

// Discard drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Event) {}

// DefaultBuffer is the queue depth of a Journal.
const DefaultBuffer = 256

// Option configures a Journal.
type Option func(*Journal)

// WithBuffer sets the queue depth. Default: 256.
func WithBuffer(n int) Option {
	return func(j *Journal) {
		if n > 0 {
			j.buffer = n
		}
	}
}

// WithIDGenerator sets the event ID generator. Default: idgen.Default.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(j *Journal) { j.newID = gen }
}

// WithClock sets the timestamp source. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// Journal queues events and delivers them to a sink from one goroutine.
type Journal struct {
	sink   Sink
	buffer int
	newID  idgen.Generator
	now    func() time.Time
	logger *slog.Logger

	ch      chan Event
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
	dropped int
}

// New starts a Journal writing to sink. Close it to flush and stop.
func New(sink Sink, opts ...Option) *Journal {
	j := &Journal{
		sink:   sink,
		buffer: DefaultBuffer,
		newID:  idgen.Default,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(j)
	}
	j.ch = make(chan Event, j.buffer)
	j.done = make(chan struct{})
	go j.run()
	return j
}

// Record stamps ev with an ID and timestamp when missing and queues it.
// A full queue drops the event.
func (j *Journal) Record(ev Event) {
	if ev.ID == "" {
		ev.ID = j.newID()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = j.now().UnixMilli()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.ch <- ev:
	default:
		j.dropped++
		j.logger.Warn("journal: queue full, event dropped", "kind", ev.Kind, "dropped", j.dropped)
	}
}

// Dropped reports how many events a full queue discarded.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

func (j *Journal) run() {
	defer close(j.done)
	for ev := range j.ch {
		if err := j.sink.Send(context.Background(), ev); err != nil {
			j.logger.Warn("journal: send failed", "kind", ev.Kind, "error", err)
		}
	}
}

// Close delivers queued events, then closes the sink.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()
	<-j.done
	return j.sink.Close()
}
