// Package watch polls the catalog database for edits and reloads the
// running engine's catalog once the edits settle.
//
//	w := watch.New(db, watch.Options{Detector: watch.MaxColumnDetector("catalog_products", "updated_at")})
//	go w.OnChange(ctx, reloadCatalog)
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a version token from the database. Two calls that
// return different values mean the catalog changed.
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes a Watcher.
type Options struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action runs.
	// Further changes restart it. 0 runs the action at once.
	Debounce time.Duration
	// Detector. Default: PragmaDataVersion.
	Detector ChangeDetector
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher runs an action whenever the detector's token moves.
type Watcher struct {
	db   *sql.DB
	opts Options

	version atomic.Int64
	checks  atomic.Int64
	reloads atomic.Int64
	errors  atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks  int64 `json:"checks"`
	Reloads int64 `json:"reloads"`
	Errors  int64 `json:"errors"`
	Version int64 `json:"version"`
}

// New creates a Watcher. Call OnChange to start it.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:  w.checks.Load(),
		Reloads: w.reloads.Load(),
		Errors:  w.errors.Load(),
		Version: w.version.Load(),
	}
}

// OnChange blocks until ctx is cancelled. A failed action leaves the
// version where it was so the next poll retries it.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	if v, err := w.opts.Detector(ctx, w.db); err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var (
		settle  *time.Timer
		settled <-chan time.Time
		pending = int64(-1)
	)
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				w.errors.Add(1)
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			if cur == w.version.Load() || cur == pending {
				continue
			}
			pending = cur
			if w.opts.Debounce <= 0 {
				w.fire(action, pending)
				pending = -1
				continue
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.NewTimer(w.opts.Debounce)
			settled = settle.C
			log.Debug("watch: change detected", "pending_version", cur)

		case <-settled:
			settled = nil
			if pending >= 0 {
				w.fire(action, pending)
				pending = -1
			}
		}
	}
}

func (w *Watcher) fire(action func() error, ver int64) {
	log := w.opts.Logger
	start := time.Now()
	if err := action(); err != nil {
		w.errors.Add(1)
		log.Error("watch: reload failed", "error", err, "version", ver)
		return
	}
	w.reloads.Add(1)
	w.version.Store(ver)
	log.Info("watch: reloaded", "version", ver, "duration", time.Since(start))
}

// PragmaDataVersion changes whenever another connection writes to the
// database file.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// MaxColumnDetector polls MAX(column) of table, e.g. an updated_at column.
func MaxColumnDetector(table, column string) ChangeDetector {
	query := "SELECT COALESCE(MAX(" + quoteIdent(column) + "), 0) FROM " + quoteIdent(table)
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, query).Scan(&v)
		return v, err
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
