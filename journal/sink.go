package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// Sink is an output backend for journal events.
type Sink interface {
	Send(ctx context.Context, ev Event) error
	Close() error
}

// Stdout writes JSON lines to an io.Writer (default os.Stdout).
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Send(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}

func (s *Stdout) Close() error { return nil }

// EventFunc is called for each event, in-process.
type EventFunc func(ctx context.Context, ev Event) error

// Callback delivers events via a Go function call.
type Callback struct {
	fn EventFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn EventFunc) *Callback { return &Callback{fn: fn} }

func (c *Callback) Send(ctx context.Context, ev Event) error {
	if c.fn != nil {
		return c.fn(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }

// Webhook POSTs each event as JSON with retry and exponential backoff.
// Detail values leave as HTML-safe text: markup stripped, the rest escaped.
type Webhook struct {
	policy     *bluemonday.Policy
	url        string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithWebhookBackoff sets the first retry delay, doubled on every retry.
// Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookClient sets the HTTP client. Default: 10s timeout.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook sink targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		policy:     bluemonday.StrictPolicy(),
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

func (w *Webhook) Send(ctx context.Context, ev Event) error {
	if len(ev.Detail) > 0 {
		detail := make(map[string]string, len(ev.Detail))
		for k, v := range ev.Detail {
			detail[k] = w.policy.Sanitize(v)
		}
		ev.Detail = detail
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.backoff << uint(attempt-1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			w.logger.Warn("webhook: request failed", "attempt", attempt+1, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook: status %d", resp.StatusCode)
		w.logger.Warn("webhook: bad status", "attempt", attempt+1, "status", resp.StatusCode)
	}
	return fmt.Errorf("webhook: all retries exhausted: %w", lastErr)
}

func (w *Webhook) Close() error { return nil }

// Router fans out events to all sinks. One sink error does not block the
// others; errors are logged and the first is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) Send(ctx context.Context, ev Event) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Send(ctx, ev); err != nil {
			r.logger.Warn("journal: sink send failed", "kind", ev.Kind, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
